package domain

import "strings"

// DefaultBoardTitle is shown when the board has no stored title.
const DefaultBoardTitle = "Team Board"

// BoardMeta is the single metadata record of a board.
type BoardMeta struct {
	Title string `json:"title"`
}

// SanitizeBoardTitle trims and truncates a title, falling back to the
// default when nothing is left.
func SanitizeBoardTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultBoardTitle
	}
	return Truncate(title, MaxTitleLen)
}
