package clienttest

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestMalformedPDU(t *testing.T) {
	addr := startTestServer(t)

	client, err := NewRTRClient(addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	err = client.Send(BuildMalformedPDU())
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// The server answers a malformed PDU with an Error Report and then
	// closes the connection.
	resp, err := client.Receive(4096)
	if err != nil {
		t.Fatalf("Failed to read Error Report: %v", err)
	}

	pduType := resp[1]
	if pduType != 10 {
		t.Fatalf("Malformed PDU did not cause an Error Report (type 10), got type: %d", pduType)
	}
	if len(resp) < 16 {
		t.Fatalf("Error Report PDU too short: %x", resp)
	}

	errorCode := binary.BigEndian.Uint16(resp[2:4])
	if errorCode != 0 {
		t.Errorf("Expected error code 0 (corrupt data), got: %d", errorCode)
	}

	if _, err := client.Receive(4096); err == nil {
		t.Errorf("Expected connection to close after error, but read succeeded")
	}
}
