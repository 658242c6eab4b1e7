// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI walks through a single metadata batch:
//  1. [PreviewView] : Browse the items and the field updates that will be sent
//  2. [ConfirmView] : Confirm the batch
//  3. [ProgressView] : Follow per-item events as the batch runs
//  4. [ResultView] : Scroll the per-item results and totals
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Events flow from [BatchRunner.Stream] one at a time, so the view never blocks on the archive.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
