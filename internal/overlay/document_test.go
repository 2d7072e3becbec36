package overlay

import (
	"strings"
	"testing"

	"github.com/kirinuki/kirinuki-agent/internal/chat"
)

func TestRenderDocumentHeader(t *testing.T) {
	doc := RenderDocument(nil, DefaultConfig())

	for _, want := range []string{
		"[Script Info]",
		"Title: Chat Overlay",
		"ScriptType: v4.00+",
		"PlayResX: 1920",
		"PlayResY: 1080",
		"ScaledBorderAndShadow: yes",
		"[V4+ Styles]",
		"Style: ChatMessage,Hiragino Sans,60,&H00FFFFFF,&H000000FF,&H00000000,&H80000000,0,0,0,0,100,100,0,0,1,3,2,7,10,20,10,1",
		"[Events]",
		"Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q", want)
		}
	}
}

func TestRenderDocumentDialogue(t *testing.T) {
	cfg := DefaultConfig()
	events := Schedule([]chat.Message{{Time: 10, Text: "こんにちは"}}, cfg)
	doc := RenderDocument(events, cfg)

	want := "Dialogue: 0,0:00:10.00,0:00:16.10,ChatMessage,,0,0,0,,{\\move(2000,260,-320,260)}こんにちは\n"
	if !strings.Contains(doc, want) {
		t.Errorf("document missing dialogue line %q\ngot:\n%s", want, doc)
	}
}

func TestRenderDocumentLaneY(t *testing.T) {
	cfg := DefaultConfig()
	events := []Event{
		{Lane: 0, Start: 10, End: 16, XStart: 2000, XEnd: -320, Text: "a"},
		{Lane: 3, Start: 10, End: 16, XStart: 2000, XEnd: -320, Text: "b"},
	}
	doc := RenderDocument(events, cfg)

	if !strings.Contains(doc, "{\\move(2000,260,-320,260)}a") {
		t.Errorf("lane 0 not at y=260:\n%s", doc)
	}
	if !strings.Contains(doc, "{\\move(2000,440,-320,440)}b") {
		t.Errorf("lane 3 not at y=440:\n%s", doc)
	}
}

func TestRenderDocumentEscapesText(t *testing.T) {
	cfg := DefaultConfig()
	doc := RenderDocument([]Event{
		{Lane: 0, Start: 10, End: 16, XStart: 2000, XEnd: -320, Text: `w{o}w\`},
	}, cfg)

	if !strings.Contains(doc, `}w\{o\}w\\`) {
		t.Errorf("braces or backslash not escaped:\n%s", doc)
	}
}

func TestBuildChatDocumentPolicies(t *testing.T) {
	cfg := DefaultConfig()
	msgs := []chat.Message{
		{Time: 2, Text: "too early"},
		{Time: 8, Text: "   "},
		{Time: 9, Text: "  kept  "},
		{Time: 12, Text: "also kept"},
	}

	doc, count := BuildChatDocument(msgs, cfg)
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if strings.Contains(doc, "too early") {
		t.Error("message before the visible start offset was rendered")
	}
	if !strings.Contains(doc, "}kept") {
		t.Error("kept message missing or not trimmed")
	}
	if !strings.Contains(doc, "also kept") {
		t.Error("second kept message missing")
	}
}

func TestBuildChatDocumentEmptyStream(t *testing.T) {
	doc, count := BuildChatDocument(nil, DefaultConfig())
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if !strings.Contains(doc, "[Events]") {
		t.Error("empty stream should still produce a valid document")
	}
}
