package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/iasync/internal/models"
)

var _ list.Item = batchItem{}

// batchItem is one identifier of the batch with the updates it will receive.
type batchItem struct {
	identifier string
	updates    []models.FieldUpdate
}

func (i batchItem) FilterValue() string { return i.identifier }
func (i batchItem) Title() string       { return i.identifier }
func (i batchItem) Description() string {
	parts := make([]string, 0, len(i.updates))
	for _, u := range i.updates {
		parts = append(parts, fmt.Sprintf("%s %s=%q", u.Op(), u.Field, u.Value))
	}
	return strings.Join(parts, " • ")
}

func batchItems(req models.UpdateRequest) []list.Item {
	items := make([]list.Item, len(req.Items))
	for i, id := range req.Items {
		items[i] = batchItem{identifier: id, updates: req.Updates}
	}
	return items
}
