package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

func TestScanOutagesMatchesKeywordNearAlias(t *testing.T) {
	text := "ประกาศ\nสถานีบางศาลา เซ็นเซอร์ขัดข้อง อยู่ระหว่างซ่อม\nสถานีหาดใหญ่ทำงานปกติ\n"
	statuses := ScanOutages(text)

	if !statuses["Kallayanamit"].Offline {
		t.Fatal("Kallayanamit should be flagged offline")
	}
	if statuses["Kallayanamit"].Detail == "" {
		t.Fatal("outage detail should carry the matched line")
	}
	if statuses["HatYai"].Offline {
		t.Fatal("HatYai line has no outage keyword, should stay online")
	}
	if statuses["Sadao"].Offline {
		t.Fatal("Sadao is not mentioned, should stay online")
	}
}

func TestScanOutagesDetailTruncatesOnRuneBoundary(t *testing.T) {
	// 30 bytes of prefix, then 3-byte Thai runes. Byte 200 lands two
	// bytes into a rune, so a naive byte slice would emit invalid UTF-8.
	line := "หาดใหญ่ offline " + strings.Repeat("ก", 100)
	statuses := ScanOutages(line)

	detail := statuses["HatYai"].Detail
	if !statuses["HatYai"].Offline {
		t.Fatal("HatYai should be flagged offline")
	}
	if len(detail) > 200 {
		t.Fatalf("detail is %d bytes, want at most 200", len(detail))
	}
	if !utf8.ValidString(detail) {
		t.Fatal("truncated detail is not valid UTF-8")
	}
}

func TestScanOutagesEnglishKeywords(t *testing.T) {
	statuses := ScanOutages("station X.173 sensor offline since monday")
	if !statuses["Sadao"].Offline {
		t.Fatal("X.173 alias plus offline keyword should flag Sadao")
	}
}

func TestScanOutagesKeywordWithoutStation(t *testing.T) {
	statuses := ScanOutages("ระบบ ขัดข้อง ชั่วคราว")
	for id, st := range statuses {
		if st.Offline {
			t.Fatalf("%s flagged offline with no station alias in the line", id)
		}
	}
}

func TestFetchOutagesHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("สถานีม่วงก็อง ไฟฟ้าขัดข้อง"))
	}))
	defer srv.Close()

	outage := NewOutage(OutageOptions{URL: srv.URL}, zerolog.Nop())
	statuses, err := outage.FetchOutages(context.Background())
	if err != nil {
		t.Fatalf("FetchOutages failed: %v", err)
	}
	if !statuses["Sadao"].Offline {
		t.Fatal("Sadao should be offline per the page text")
	}
}

func TestFetchOutagesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	outage := NewOutage(OutageOptions{URL: srv.URL}, zerolog.Nop())
	if _, err := outage.FetchOutages(context.Background()); err == nil {
		t.Fatal("non-200 response should fail")
	}
}
