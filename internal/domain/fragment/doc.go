// Package fragment holds the three user-edited source texts of a playground session.
//
// A session has exactly one live fragment per kind (markup, style, script).
// Writes replace the previous text; there is no history.
//
// Example Usage:
//
//	store := fragment.NewStore()
//	store.SetText(fragment.Markup, "<p>hi</p>")
//	set := store.Snapshot()
package fragment
