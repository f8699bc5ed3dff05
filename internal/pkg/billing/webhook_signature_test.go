package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"testing"
	"time"
)

func signPayload(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10) + "." + string(payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.paid"}`)
	secret := "whsec_test"
	header := signPayload(payload, secret, time.Now().Unix())

	if !VerifyWebhookSignature(payload, header, secret, DefaultSignatureTolerance) {
		t.Fatal("valid signature must verify")
	}
}

func TestVerifyWebhookSignatureRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := signPayload(payload, "whsec_other", time.Now().Unix())

	if VerifyWebhookSignature(payload, header, "whsec_test", DefaultSignatureTolerance) {
		t.Fatal("signature with the wrong secret must fail")
	}
}

func TestVerifyWebhookSignatureRejectsTamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	header := signPayload(payload, secret, time.Now().Unix())

	if VerifyWebhookSignature([]byte(`{"id":"evt_2"}`), header, secret, DefaultSignatureTolerance) {
		t.Fatal("tampered payload must fail verification")
	}
}

func TestVerifyWebhookSignatureRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	header := signPayload(payload, secret, time.Now().Add(-10*time.Minute).Unix())

	if VerifyWebhookSignature(payload, header, secret, DefaultSignatureTolerance) {
		t.Fatal("timestamp outside the tolerance window must fail")
	}
}

func TestVerifyWebhookSignatureRejectsMalformedHeader(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"

	for _, header := range []string{
		"",
		"v1=deadbeef",
		"t=notanumber,v1=deadbeef",
		fmt.Sprintf("t=%d", time.Now().Unix()),
		"t=,v1=",
	} {
		if VerifyWebhookSignature(payload, header, secret, DefaultSignatureTolerance) {
			t.Errorf("malformed header %q must fail verification", header)
		}
	}
}

func TestVerifyWebhookSignatureAcceptsMultipleV1(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	ts := time.Now().Unix()
	valid := signPayload(payload, secret, ts)

	header := fmt.Sprintf("t=%d,v1=%s,%s", ts, hex.EncodeToString(make([]byte, 32)), valid[len(fmt.Sprintf("t=%d,", ts)):])
	if !VerifyWebhookSignature(payload, header, secret, DefaultSignatureTolerance) {
		t.Fatal("any matching v1 candidate must verify")
	}
}
