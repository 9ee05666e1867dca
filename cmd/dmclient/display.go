package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/douyudm/dmclient/internal/danmaku"
	"golang.org/x/text/width"
)

// displayWidth counts terminal columns: East Asian wide and fullwidth runes
// take two.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

// padRight pads s with spaces to cols columns.
func padRight(s string, cols int) string {
	if w := displayWidth(s); w < cols {
		return s + strings.Repeat(" ", cols-w)
	}
	return s
}

func printSection(w io.Writer, title string) {
	lineLen := max(3, 46-displayWidth(title)-1)
	fmt.Fprintf(w, "  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printOK(w io.Writer, msg string) {
	fmt.Fprintf(w, "  \033[32m✓\033[0m %s\n", msg)
}

func printReady(w io.Writer, msg string) {
	fmt.Fprintf(w, "  \033[32m▶\033[0m %s\n", msg)
}

const nameColumns = 16

// formatEvent renders the built-in one-line view of ev. It returns "" for
// events not worth a line.
func formatEvent(ev danmaku.Event) string {
	switch e := ev.(type) {
	case *danmaku.ChatMessage:
		return fmt.Sprintf("%s \033[90mLv%-3d\033[0m %s %s",
			e.Timestamp.Format("15:04:05"), e.UserLevel, padRight(e.UserName, nameColumns), e.Text)
	case *danmaku.GiftSend:
		return fmt.Sprintf("%s \033[35m禮物\033[0m  %s gift=%d x%d (hits %d)",
			e.Timestamp.Format("15:04:05"), padRight(e.UserName, nameColumns), e.GiftID, e.Count, e.Hits)
	case *danmaku.UserEnter:
		return fmt.Sprintf("         \033[90m進場\033[0m  %s Lv%d", padRight(e.UserName, nameColumns), e.UserLevel)
	case *danmaku.UserBuyDeserve:
		return fmt.Sprintf("         \033[33m酬勤\033[0m  level=%d x%d", e.DeserveLevel, e.Count)
	case *danmaku.LiveStatusChanged:
		if e.Live {
			return fmt.Sprintf("\033[32m▶ 房間 %d 開播\033[0m", e.RoomID)
		}
		return fmt.Sprintf("\033[31m■ 房間 %d 下播\033[0m %s", e.RoomID, e.Reason)
	case *danmaku.SuperDanmaku:
		return fmt.Sprintf("\033[36m超級彈幕\033[0m %s", e.Content)
	case *danmaku.RoomGiftBroadcast:
		return fmt.Sprintf("\033[35m%s\033[0m %s → %s %s x%d", e.Style, e.SenderName, e.DestinationName, e.GiftName, e.Count)
	default:
		return ""
	}
}
