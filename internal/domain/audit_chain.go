package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ZeroAuditHash is the prev_event_hash of the first event in a tenant chain.
const ZeroAuditHash = "0000000000000000000000000000000000000000000000000000000000000000"

// AuditPayloadJSON returns the canonical payload encoding and its sha256.
// Object keys are emitted in sorted order.
func AuditPayloadJSON(payload map[string]any) ([]byte, string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	return encoded, sha256Hex(encoded), nil
}

// SealAuditEvent assigns seq and prev hash and computes payload and event
// hashes. CreatedAt must already be set.
func SealAuditEvent(event AuditEvent, seq int64, prevHash string) (AuditEvent, []byte, error) {
	if event.TenantID == "" || event.EventType == "" {
		return AuditEvent{}, nil, errors.New("audit event missing tenant_id or event_type")
	}
	if event.CreatedAt.IsZero() {
		return AuditEvent{}, nil, errors.New("audit event missing created_at")
	}
	payloadJSON, payloadHash, err := AuditPayloadJSON(event.Payload)
	if err != nil {
		return AuditEvent{}, nil, err
	}
	event.Seq = seq
	event.PrevEventHash = prevHash
	event.PayloadHash = payloadHash
	event.EventHash = computeChainHash(event)
	return event, payloadJSON, nil
}

// VerifyAuditChain checks a tenant's events, ordered by seq, link by link.
func VerifyAuditChain(tenantID string, events []AuditEvent) error {
	expectedSeq := int64(1)
	prevHash := ZeroAuditHash
	for _, event := range events {
		if event.TenantID != tenantID {
			return fmt.Errorf("audit chain tenant mismatch at seq %d", event.Seq)
		}
		if event.Seq != expectedSeq {
			return fmt.Errorf("audit chain seq mismatch: expected %d got %d", expectedSeq, event.Seq)
		}
		if event.PrevEventHash != prevHash {
			return fmt.Errorf("audit chain prev hash mismatch at seq %d", event.Seq)
		}
		_, payloadHash, err := AuditPayloadJSON(event.Payload)
		if err != nil {
			return fmt.Errorf("audit chain payload encode failed at seq %d: %w", event.Seq, err)
		}
		if payloadHash != event.PayloadHash {
			return fmt.Errorf("audit chain payload hash mismatch at seq %d", event.Seq)
		}
		if event.CreatedAt.IsZero() {
			return fmt.Errorf("audit chain missing created_at at seq %d", event.Seq)
		}
		if computeChainHash(event) != event.EventHash {
			return fmt.Errorf("audit chain hash mismatch at seq %d", event.Seq)
		}
		prevHash = event.EventHash
		expectedSeq++
	}
	return nil
}

func computeChainHash(event AuditEvent) string {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	writeKV(buf, "created_at", event.CreatedAt.UTC().Format(time.RFC3339Nano), false)
	writeKV(buf, "event_type", string(event.EventType), false)
	writeKV(buf, "payload_hash", event.PayloadHash, false)
	writeKV(buf, "prev_event_hash", event.PrevEventHash, false)
	writeKVNumber(buf, "seq", event.Seq, false)
	writeKV(buf, "tenant_id", event.TenantID, false)
	writeKV(buf, "v", AuditChainVersion, true)
	buf.WriteByte('}')
	return sha256Hex(buf.Bytes())
}

func sha256Hex(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

func writeKV(buf *bytes.Buffer, key, value string, last bool) {
	writeJSONString(buf, key)
	buf.WriteByte(':')
	writeJSONString(buf, value)
	if !last {
		buf.WriteByte(',')
	}
}

func writeKVNumber(buf *bytes.Buffer, key string, value int64, last bool) {
	writeJSONString(buf, key)
	buf.WriteByte(':')
	buf.WriteString(strconv.FormatInt(value, 10))
	if !last {
		buf.WriteByte(',')
	}
}

func writeJSONString(buf *bytes.Buffer, value string) {
	encoded, _ := json.Marshal(value)
	buf.Write(encoded)
}
