package titles

import "testing"

func TestParseBand(t *testing.T) {
	tt := []struct {
		title string
		want  string
	}{
		{title: "Thou @ Siberia (New Orleans, LA) on 01.20.12", want: "Thou"},
		{title: "Grateful Dead @ The Fillmore on 1977-05-08", want: "Grateful Dead"},
		{title: "Eyehategod on 5/8/2012", want: "Eyehategod"},
		{title: "Crowbar in 1994 somewhere", want: "Crowbar"},
		{title: "Grateful Dead - Fire on the Mountain - Fillmore 05.08.77", want: "Grateful Dead"},
		{title: "Live @ The Saturn Bar", want: ""},
		{title: "XY @ Bar", want: ""},
		{title: "Just a title", want: ""},
	}

	for _, tc := range tt {
		t.Run(tc.title, func(t *testing.T) {
			if got := ParseBand(tc.title); got != tc.want {
				t.Errorf("ParseBand() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseVenue(t *testing.T) {
	tt := []struct {
		title string
		want  string
	}{
		{title: "Thou @ Siberia (New Orleans, LA) on 01.20.12", want: "Siberia"},
		{title: "Grateful Dead @ The Fillmore on 1977-05-08", want: "The Fillmore"},
		{title: "Sourvein at Saturn Bar [audience]", want: "Saturn Bar"},
		{title: "Melvins live at Gilman Street 1991", want: "Gilman Street"},
		{title: "Grateful Dead - Fire on the Mountain - Fillmore 05.08.77", want: "Fillmore"},
		{title: "Band @ The Howlin' Wolf (2nd set)", want: "The Howlin' Wolf"},
		{title: "No venue here", want: ""},
	}

	for _, tc := range tt {
		t.Run(tc.title, func(t *testing.T) {
			if got := ParseVenue(tc.title); got != tc.want {
				t.Errorf("ParseVenue() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractDate(t *testing.T) {
	tt := []struct {
		in   string
		want string
	}{
		{in: "Thou @ Siberia on 01.20.12", want: "2012-01-20"},
		{in: "Grateful Dead @ The Fillmore on 1977-05-08", want: "1977-05-08"},
		{in: "Eyehategod on 5/8/2012", want: "2012-05-08"},
		{in: "show 1.5.2012", want: "2012-01-05"},
		{in: "Eyehategod on 5/8/77", want: "1977-05-08"},
		{in: "Fillmore 05.08.77", want: "1977-05-08"},
		{in: "Thou on 10-31-13", want: "2013-10-31"},
		{in: "skips 13.45.99 for 1.2.03", want: "2003-01-02"},
		{in: "Halloween 1994", want: "1994-01-01"},
		{in: "no date", want: ""},
	}

	for _, tc := range tt {
		t.Run(tc.in, func(t *testing.T) {
			if got := ExtractDate(tc.in); got != tc.want {
				t.Errorf("ExtractDate() = %q, want %q", got, tc.want)
			}
		})
	}

	if got := ExtractFullDate("Halloween 1994"); got != "" {
		t.Errorf("ExtractFullDate should not fall back to a year, got %q", got)
	}
}

func TestStandardizeDate(t *testing.T) {
	tt := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "2012-01-20T00:00:00Z", want: "2012-01-20", ok: true},
		{in: "01/20/12", want: "2012-01-20", ok: true},
		{in: "1/20/2012", want: "2012-01-20", ok: true},
		{in: " 05.08.77 ", want: "1977-05-08", ok: true},
		{in: "1994", want: "1994-01-01", ok: true},
		{in: "Jan 20 2012", ok: false},
		{in: "2012-02-30", ok: false},
		{in: "2012-01-20 extra", ok: false},
	}

	for _, tc := range tt {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := StandardizeDate(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Errorf("StandardizeDate() = %q, %v; want %q, %v", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestDateHelpers(t *testing.T) {
	t.Run("AlternateDate", func(t *testing.T) {
		if got := AlternateDate("1977-05-08"); got != "05.08.77" {
			t.Errorf("expected 05.08.77, got %q", got)
		}
		if got := AlternateDate("2012-01-20"); got != "01.20.12" {
			t.Errorf("expected 01.20.12, got %q", got)
		}
		if got := AlternateDate("bad"); got != "" {
			t.Errorf("expected empty for bad input, got %q", got)
		}
	})

	t.Run("IsCanonical", func(t *testing.T) {
		if !IsCanonical("2012-01-20") || IsCanonical("2012-1-20") || IsCanonical("2012-02-30") {
			t.Error("IsCanonical misclassified input")
		}
	})

	t.Run("DateFromIdentifier", func(t *testing.T) {
		tt := map[string]string{
			"01.20.12_Thou":           "2012-01-20",
			"2012-01-20-thou-siberia": "2012-01-20",
			"gd1977-05-08.sbd.miller": "1977-05-08",
			"thou-siberia":            "",
		}
		for id, want := range tt {
			if got := DateFromIdentifier(id); got != want {
				t.Errorf("DateFromIdentifier(%q) = %q, want %q", id, got, want)
			}
		}
	})
}

func TestFold(t *testing.T) {
	if got := Fold("  Café   Lafitte "); got != "cafe lafitte" {
		t.Errorf("expected cafe lafitte, got %q", got)
	}
	if got := Fold("THE FILLMORE"); got != "the fillmore" {
		t.Errorf("expected the fillmore, got %q", got)
	}
	if !Contains("Grateful Dead - Fire on the Mountain", "grateful dead") {
		t.Error("expected folded containment")
	}
	if Contains("anything", "  ") {
		t.Error("blank needle should never match")
	}
}

func TestParse(t *testing.T) {
	got := Parse("Thou @ Siberia (New Orleans, LA) on 01.20.12")
	want := Parsed{Band: "Thou", Venue: "Siberia", Date: "2012-01-20"}
	if got != want {
		t.Errorf("Parse() = %+v, want %+v", got, want)
	}
}
