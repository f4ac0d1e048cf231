// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI tracks a single long-running server task through two views:
//  1. [WatchView] : Live status, animated progress bar, and push-link health
//  2. [ResultView] : Final outcome once the task reaches a terminal state
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Session changes flow through channels fed by the tracking engine's subscriptions,
// so the model never touches engine internals; cancellation is requested through an
// injected callback and resolves through the same terminal channel as every other
// completion path.
//
// Keyboard bindings: c requests cancellation, q quits, with contextual help
// displayed via charmbracelet/bubbles/help.
package ui
