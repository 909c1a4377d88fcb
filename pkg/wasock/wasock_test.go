package wasock

import (
	"strings"
	"testing"
)

func TestTerminalCode(t *testing.T) {
	for _, code := range []int{CodeForbidden, CodeDeviceMismatch} {
		if !TerminalCode(code) {
			t.Errorf("code %d should be terminal", code)
		}
	}
	for _, code := range []int{CodeStreamError, CodeLoggedOut, CodeConnectionReplaced, CodeConnectionLost, 0} {
		if TerminalCode(code) {
			t.Errorf("code %d should not be terminal", code)
		}
	}
}

func TestEncodeQRSVG(t *testing.T) {
	svg, err := EncodeQRSVG("2@abcdef0123456789,pairing-ref,key==", 256)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.HasPrefix(svg, `<svg xmlns="http://www.w3.org/2000/svg"`) || !strings.HasSuffix(svg, "</svg>") {
		t.Error("output is not a self-contained SVG")
	}
	if !strings.Contains(svg, `width="256" height="256"`) {
		t.Error("requested size not applied")
	}
	if !strings.Contains(svg, `fill="#000"`) {
		t.Error("no dark modules rendered")
	}
}

func TestParseTarget(t *testing.T) {
	jid, err := parseTarget("5511999990000")
	if err != nil {
		t.Fatalf("phone parse failed: %v", err)
	}
	if jid.User != "5511999990000" || jid.Server != "s.whatsapp.net" {
		t.Errorf("parsed %s", jid.String())
	}

	// Formatting noise is stripped
	jid, err = parseTarget("+55 (11) 99999-0000")
	if err != nil {
		t.Fatalf("formatted phone parse failed: %v", err)
	}
	if jid.User != "5511999990000" {
		t.Errorf("parsed user %q", jid.User)
	}

	// Full JIDs pass through
	jid, err = parseTarget("5511999990000@s.whatsapp.net")
	if err != nil {
		t.Fatalf("jid parse failed: %v", err)
	}
	if jid.User != "5511999990000" {
		t.Errorf("parsed user %q", jid.User)
	}

	if _, err := parseTarget("no-digits"); err == nil {
		t.Error("garbage target accepted")
	}
}

func TestBuildVCard(t *testing.T) {
	card := buildVCard(&OutboundContact{
		FullName:     "Ana Souza",
		PhoneNumber:  "5511999990000",
		Organization: "Acme",
		Email:        "ana@acme.example",
	})

	for _, want := range []string{
		"BEGIN:VCARD",
		"FN:Ana Souza",
		"waid=5511999990000",
		"ORG:Acme",
		"EMAIL:ana@acme.example",
		"END:VCARD",
	} {
		if !strings.Contains(card, want) {
			t.Errorf("vcard missing %q:\n%s", want, card)
		}
	}

	minimal := buildVCard(&OutboundContact{FullName: "Bo", PhoneNumber: "55"})
	if strings.Contains(minimal, "ORG:") || strings.Contains(minimal, "EMAIL:") {
		t.Error("empty optional fields rendered")
	}
}

func TestBuildButtonsMessage(t *testing.T) {
	msg := buildButtonsMessage(&OutboundTemplate{
		Text:   "Pick one",
		Footer: "footer",
		Buttons: []TemplateButton{
			{ID: "a", Text: "Alpha"},
			{ID: "b", Text: "Beta"},
		},
	})

	bm := msg.GetButtonsMessage()
	if bm == nil {
		t.Fatal("buttons message missing")
	}
	if bm.GetContentText() != "Pick one" || bm.GetFooterText() != "footer" {
		t.Errorf("content %q footer %q", bm.GetContentText(), bm.GetFooterText())
	}
	if len(bm.GetButtons()) != 2 {
		t.Fatalf("built %d buttons, want 2", len(bm.GetButtons()))
	}
	first := bm.GetButtons()[0]
	if first.GetButtonID() != "a" || first.GetButtonText().GetDisplayText() != "Alpha" {
		t.Errorf("button %v", first)
	}

	// Footer stays unset when empty
	bare := buildButtonsMessage(&OutboundTemplate{Text: "x", Buttons: []TemplateButton{{ID: "1", Text: "y"}}})
	if bare.GetButtonsMessage().FooterText != nil {
		t.Error("footer set on footerless template")
	}
}
