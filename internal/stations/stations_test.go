package stations

import (
	"testing"

	"flood-watcher/internal/config"
)

func basinFixture() config.BasinConfig {
	return config.BasinConfig{
		PrimaryStation:  "HatYai",
		UpstreamStation: "Sadao",
		Stations: []config.StationConfig{
			{ID: "HatYai", Code: "X.90", Name: "Hat Yai City", ProviderID: 2585, BankFullCapacity: 10.5, CriticalThreshold: 11.0, MinValidLevel: -2.0},
			{ID: "Sadao", Code: "X.173", Name: "Sadao", ProviderID: 2590, BankFullCapacity: 9.0, CriticalThreshold: 9.5, MinValidLevel: -1.5},
			{ID: "Kallayanamit", Code: "X.44", Name: "Bang Sala", ProviderID: 2589, BankFullCapacity: 10.0, CriticalThreshold: 10.5, MinValidLevel: -1.8},
		},
	}
}

func TestRegistryLookups(t *testing.T) {
	r, err := NewRegistry(basinFixture())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	if got := r.Primary().ID; got != "HatYai" {
		t.Fatalf("primary should be HatYai, got %s", got)
	}
	if got := r.Upstream().Code; got != "X.173" {
		t.Fatalf("upstream code should be X.173, got %s", got)
	}

	st, ok := r.ByProviderID(2589)
	if !ok || st.ID != "Kallayanamit" {
		t.Fatalf("provider id 2589 should resolve to Kallayanamit, got %+v ok=%v", st, ok)
	}
	if _, ok := r.ByProviderID(9999); ok {
		t.Fatal("unknown provider id should not resolve")
	}

	ids := r.IDs()
	if len(ids) != 3 || ids[0] != "HatYai" {
		t.Fatalf("IDs should preserve configuration order, got %v", ids)
	}
}

func TestRegistryRejectsDuplicateIDs(t *testing.T) {
	cfg := basinFixture()
	cfg.Stations = append(cfg.Stations, cfg.Stations[0])
	if _, err := NewRegistry(cfg); err == nil {
		t.Fatal("duplicate station id should fail")
	}
}

func TestSanitize(t *testing.T) {
	r, err := NewRegistry(basinFixture())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	cases := []struct {
		name    string
		raw     string
		station string
		want    float64
		ok      bool
	}{
		{"valid level", "9.75", "HatYai", 9.75, true},
		{"whitespace tolerated", " 8.20 ", "HatYai", 8.2, true},
		{"sentinel rejected", "-9999", "HatYai", 0, false},
		{"below floor rejected", "-3.5", "HatYai", 0, false},
		{"exact floor rejected", "-2.0", "HatYai", 0, false},
		{"garbage rejected", "n/a", "HatYai", 0, false},
		{"empty rejected", "", "HatYai", 0, false},
		{"unknown station rejected", "5.0", "Nowhere", 0, false},
		{"per-station floor", "-1.6", "Sadao", 0, false},
		{"just above floor", "-1.4", "Sadao", -1.4, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := r.Sanitize(tc.raw, tc.station)
			if ok != tc.ok {
				t.Fatalf("Sanitize(%q,%s) ok=%v, want %v", tc.raw, tc.station, ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("Sanitize(%q,%s)=%v, want %v", tc.raw, tc.station, got, tc.want)
			}
		})
	}
}

func TestValidLevel(t *testing.T) {
	r, err := NewRegistry(basinFixture())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	if !r.ValidLevel("HatYai", 0.0) {
		t.Fatal("0.0 should be valid for HatYai")
	}
	if r.ValidLevel("HatYai", -2.0) {
		t.Fatal("the floor itself is not a valid level")
	}
	if r.ValidLevel("Nowhere", 5.0) {
		t.Fatal("unknown station is never valid")
	}
}
