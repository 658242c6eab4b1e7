package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/iasync/internal/models"
	"github.com/desertthunder/iasync/internal/server"
	"github.com/desertthunder/iasync/internal/services"
	"github.com/desertthunder/iasync/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const defaultAuthTimeout = 2 * time.Minute

// YouTubeMatch looks up the channel video for a title.
func (r *Runner) YouTubeMatch(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	req := models.MatchRequest{
		Title:      cmd.String("title"),
		Date:       cmd.String("date"),
		Identifier: cmd.String("id"),
		Force:      cmd.Bool("force"),
	}
	match, err := r.matcher.Lookup(ctx, req)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"success": true, "enabled": r.matcher.Enabled(), "match": match}, true)
	}

	switch {
	case !r.matcher.Enabled():
		return r.writePlain("YouTube matching is not configured (set youtube.channel_id and youtube.api_key)\n")
	case match == nil:
		return r.writePlain("✗ No match for %q\n", req.Title)
	}

	label := "✓ Match"
	if match.Fallback {
		label = "~ Fallback (below score threshold)"
	}
	r.writePlain("%s: %s\n", label, match.Title)
	r.writePlain("  URL:   %s\n", match.URL)
	r.writePlain("  Score: %d (query %q)\n", match.Score, match.Query)
	if match.Band != "" || match.Venue != "" || match.Date != "" {
		r.writePlain("  Parsed: band=%q venue=%q date=%q\n", match.Band, match.Venue, match.Date)
	}
	return nil
}

// YouTubeQuota prints today's quota usage.
func (r *Runner) YouTubeQuota(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	status, err := r.matcher.QuotaStatus(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	r.writePlainHeader("YouTube search quota " + status.Day)
	r.writePlain("Used:      %d / %d (%.1f%%)\n", status.Used, status.Limit, status.Percentage)
	r.writePlain("Remaining: %d\n", status.Remaining)
	if status.Exhausted {
		r.writePlain("Status:    exhausted by the provider until reset\n")
	}
	r.writePlain("Resets:    %s\n", status.NextReset.Local().Format(time.RFC1123))
	return nil
}

// YouTubeAuth runs the OAuth2 authorization code flow and stores the token.
//
// Starts a local HTTP server for the callback, prints the consent URL, and exchanges the code.
func (r *Runner) YouTubeAuth(ctx context.Context, cmd *cli.Command) error {
	yt := r.config.YouTube
	if yt.ClientID == "" || yt.ClientSecret == "" {
		return fmt.Errorf("%w: youtube.client_id and youtube.client_secret must be set", shared.ErrMissingCredentials)
	}
	if err := r.init(ctx); err != nil {
		return err
	}

	conf := services.YouTubeOAuthConfig(yt.ClientID, yt.ClientSecret)
	conf.RedirectURL = fmt.Sprintf("http://%s/callback", r.config.Server.Addr())

	token, err := r.doOAuth(ctx, conf, cmd.Duration("timeout"))
	if err != nil {
		return err
	}
	if err := r.tokens.Save(ctx, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Token saved to %s\n\n", r.config.Database.Path)
	r.writePlain("You can now use: iasync youtube match --title \"Band @ Venue on 1977-05-08\"\n")
	return nil
}

func (r *Runner) doOAuth(ctx context.Context, conf *oauth2.Config, timeout time.Duration) (*oauth2.Token, error) {
	if timeout <= 0 {
		timeout = defaultAuthTimeout
	}

	state := shared.GenerateID()
	oauthHandler := server.NewOAuthHandler(conf, state)
	router := server.NewChiRouter()
	router.Handler(oauthHandler)

	srvCtx, stop := context.WithCancel(ctx)
	defer stop()

	httpServer := server.New(r.config.Server.Addr(), router, r.logger)
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Run(srvCtx)
	}()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	r.writePlain("→ Open this URL in your browser to authorize YouTube access:\n%s\n\n", authURL)
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		if err == nil {
			err = errors.New("callback server stopped")
		}
		return nil, fmt.Errorf("server error: %w", err)
	case <-timer.C:
		return nil, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	stop()
	if err := <-serverErrors; err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, result.Err)
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}
	return result.Token, nil
}
