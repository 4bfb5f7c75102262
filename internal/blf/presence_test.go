package blf

import "testing"

func TestParseDialogInfoEarlyIncoming(t *testing.T) {
	body := []byte(`<?xml version="1.0"?>
<dialog-info xmlns="urn:ietf:params:xml:ns:dialog-info" version="1" state="full" entity="sip:101@pbx">
  <dialog id="1" direction="recipient">
    <state event="remote-bye">early</state>
    <local><target uri="sip:101@pbx"/></local>
    <remote><target uri="sip:202@pbx"/></remote>
  </dialog>
</dialog-info>`)
	ext, state, remote := ParseDialogInfo(body)
	if ext != "101" {
		t.Fatalf("extension = %q, want 101", ext)
	}
	if state != StateRinging {
		t.Fatalf("state = %q, want ringing", state)
	}
	if remote != "sip:202@pbx" {
		t.Fatalf("remote = %q", remote)
	}
}

func TestParseDialogInfoConfirmedIsBusy(t *testing.T) {
	body := []byte(`<dialog-info><dialog id="1" direction="initiator"><state>confirmed</state><local><target uri="sip:101@pbx"/></local></dialog></dialog-info>`)
	_, state, _ := ParseDialogInfo(body)
	if state != StateBusy {
		t.Fatalf("state = %q, want busy", state)
	}
}

func TestParseDialogInfoTerminatedIsAvailable(t *testing.T) {
	body := []byte(`<dialog-info><dialog id="1"><state>terminated</state><local><target uri="sip:101@pbx"/></local></dialog></dialog-info>`)
	_, state, _ := ParseDialogInfo(body)
	if state != StateAvailable {
		t.Fatalf("state = %q, want available", state)
	}
}

func TestParseDialogInfoMalformedIsUnknown(t *testing.T) {
	_, state, _ := ParseDialogInfo([]byte("not xml"))
	if state != StateUnknown {
		t.Fatalf("state = %q, want unknown", state)
	}
}

func TestExtensionFromTo(t *testing.T) {
	got := ExtensionFromTo(`"Jane" <sip:205@pbx.example.com>;tag=abc`)
	if got != "205" {
		t.Fatalf("ExtensionFromTo = %q, want 205", got)
	}
}

func TestParseMessageSummary(t *testing.T) {
	body := []byte("Messages-Waiting: yes\r\nVoice-Message: 2/5\r\n")
	waiting, n, o := ParseMessageSummary(body)
	if !waiting || n != 2 || o != 5 {
		t.Fatalf("got waiting=%v new=%d old=%d", waiting, n, o)
	}
}

func TestParseMessageSummaryNoMessages(t *testing.T) {
	body := []byte("Messages-Waiting: no\r\nVoice-Message: 0/0\r\n")
	waiting, n, o := ParseMessageSummary(body)
	if waiting || n != 0 || o != 0 {
		t.Fatalf("got waiting=%v new=%d old=%d", waiting, n, o)
	}
}
