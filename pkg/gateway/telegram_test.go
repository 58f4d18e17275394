package gateway

import (
	"errors"
	"net/http"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestNormalizeIdentifier(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"@channel", "@channel"},
		{"channel", "@channel"},
		{"https://t.me/channel", "@channel"},
		{"http://t.me/channel", "@channel"},
		{"t.me/channel", "@channel"},
		{"-1001234567890", "-1001234567890"},
		{"1234567890", "1234567890"},
		{"  @channel  ", "@channel"},
	}
	for _, tc := range cases {
		if got := NormalizeIdentifier(tc.in); got != tc.want {
			t.Errorf("NormalizeIdentifier(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsNumericID(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"-1001234567890", true},
		{"1234567890", true},
		{"@channel", false},
		{"channel", false},
		{"-", false},
		{"", false},
		{"12a34", false},
	}
	for _, tc := range cases {
		if got := isNumericID(tc.in); got != tc.want {
			t.Errorf("isNumericID(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseViewCount(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"874", 874},
		{"1,024", 1024},
		{"1.2K", 1200},
		{"15K", 15000},
		{"3.4M", 3400000},
		{" 42 ", 42},
	}
	for _, tc := range cases {
		got, err := ParseViewCount(tc.in)
		if err != nil {
			t.Errorf("ParseViewCount(%q) returned error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseViewCount(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}

	if _, err := ParseViewCount("lots"); err == nil {
		t.Error("expected error for malformed counter")
	}
}

func TestClassifyFloodError(t *testing.T) {
	err := tele.FloodError{
		RetryAfter: 30,
	}
	retryable, wait := classify(err)
	if !retryable {
		t.Fatal("flood errors must be retryable")
	}
	if wait != 30*time.Second {
		t.Fatalf("expected 30s wait, got %v", wait)
	}
}

func TestClassifyAPIErrors(t *testing.T) {
	cases := []struct {
		code      int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}
	for _, tc := range cases {
		retryable, _ := classify(&tele.Error{Code: tc.code, Description: "api error"})
		if retryable != tc.retryable {
			t.Errorf("classify(code=%d) retryable = %v, want %v", tc.code, retryable, tc.retryable)
		}
	}
}

func TestClassifyTransportError(t *testing.T) {
	retryable, wait := classify(errors.New("connection reset"))
	if !retryable {
		t.Fatal("transport errors must be retryable")
	}
	if wait != 0 {
		t.Fatalf("expected no server wait, got %v", wait)
	}
}

func TestIsNotModified(t *testing.T) {
	err := &tele.Error{Code: http.StatusBadRequest, Description: "Bad Request: message is not modified"}
	if !isNotModified(err) {
		t.Fatal("expected not-modified to be recognized")
	}
	if isNotModified(errors.New("message is not modified")) {
		t.Fatal("plain errors are not API not-modified responses")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&DeliveryError{Action: "send", Retryable: true, Err: errors.New("x")}) {
		t.Fatal("retryable delivery error not recognized")
	}
	if IsRetryable(&DeliveryError{Action: "send", Retryable: false, Err: errors.New("x")}) {
		t.Fatal("permanent delivery error misclassified")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatal("plain errors are not retryable deliveries")
	}
	if IsRetryable(nil) {
		t.Fatal("nil is not retryable")
	}
}

func TestDeliveryErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &DeliveryError{Action: "send", Retryable: true, Err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("expected DeliveryError to unwrap to the cause")
	}
}
