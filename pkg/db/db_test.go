package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := db.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return db
}

func TestMigrate_Version(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	v, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != currentSchemaVersion {
		t.Errorf("version = %d, want %d", v, currentSchemaVersion)
	}

	// Migrating again is a no-op.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestBootstrap_Defaults(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	needs, err := db.NeedsBootstrap(ctx)
	if err != nil || needs {
		t.Fatalf("NeedsBootstrap = %v, %v", needs, err)
	}

	cfg, err := db.ActiveConfig(ctx)
	if err != nil {
		t.Fatalf("ActiveConfig: %v", err)
	}
	if cfg.Profile.Name != "default" {
		t.Errorf("profile = %q", cfg.Profile.Name)
	}
	if cfg.APIAddress() != "0.0.0.0:8080" {
		t.Errorf("APIAddress = %q", cfg.APIAddress())
	}
	if cfg.Strip != nil {
		t.Error("expected no strip before configuration")
	}
	if cfg.MQTT == nil || cfg.MQTTEnabled() {
		t.Fatal("expected a disabled MQTT bridge")
	}
	if cfg.MQTT.TopicPrefix != "stripctl" || cfg.MQTT.DiscoveryPrefix != "homeassistant" {
		t.Errorf("mqtt prefixes = %q/%q", cfg.MQTT.TopicPrefix, cfg.MQTT.DiscoveryPrefix)
	}
	if cfg.MQTT.PollInterval != 30*time.Second {
		t.Errorf("poll interval = %v", cfg.MQTT.PollInterval)
	}
}

func TestStrips_SaveAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	profile, err := db.Profiles().GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}

	if _, err := db.Strips().Get(ctx, profile.ID); !errors.Is(err, ErrStripNotFound) {
		t.Fatalf("expected ErrStripNotFound, got %v", err)
	}

	st := &Strip{ProfileID: profile.ID, IP: "192.168.40.93"}
	if err := db.Strips().Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := db.Strips().Get(ctx, profile.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Address() != "192.168.40.93:9999" {
		t.Errorf("Address = %q", got.Address())
	}
	if got.Timeout != 2*time.Second || got.Transport != "tcp" || got.QueryTransport != "udp" || got.CommandTransport != "udp" {
		t.Errorf("defaults not applied: %+v", got)
	}

	st.IP = "10.0.0.7"
	st.DeviceID = "ABC123"
	st.Timeout = 500 * time.Millisecond
	if err := db.Strips().Save(ctx, st); err != nil {
		t.Fatalf("Save (update): %v", err)
	}
	got, err = db.Strips().Get(ctx, profile.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.IP != "10.0.0.7" || got.DeviceID != "ABC123" || got.Timeout != 500*time.Millisecond {
		t.Errorf("update not applied: %+v", got)
	}
	if got.ID != st.ID {
		t.Errorf("upsert changed id: %d vs %d", got.ID, st.ID)
	}

	cfg, err := db.ActiveConfig(ctx)
	if err != nil {
		t.Fatalf("ActiveConfig: %v", err)
	}
	if cfg.Strip == nil || cfg.Strip.IP != "10.0.0.7" {
		t.Errorf("ActiveConfig strip = %+v", cfg.Strip)
	}

	if err := db.Strips().Delete(ctx, profile.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := db.Strips().Delete(ctx, profile.ID); !errors.Is(err, ErrStripNotFound) {
		t.Errorf("expected ErrStripNotFound, got %v", err)
	}
}

func TestStrips_RequiresIP(t *testing.T) {
	db := openTestDB(t)
	if err := db.Strips().Save(context.Background(), &Strip{ProfileID: 1}); err == nil {
		t.Error("expected error for empty IP")
	}
}

func TestMQTTBridges_Update(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	profile, err := db.Profiles().GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}

	b, err := db.MQTTBridges().Get(ctx, profile.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b.Enabled = true
	b.Broker = "tcp://broker.local:1883"
	b.PollInterval = 10 * time.Second
	if err := db.MQTTBridges().Update(ctx, b); err != nil {
		t.Fatalf("Update: %v", err)
	}

	cfg, err := db.ActiveConfig(ctx)
	if err != nil {
		t.Fatalf("ActiveConfig: %v", err)
	}
	if !cfg.MQTTEnabled() || cfg.MQTT.Broker != "tcp://broker.local:1883" || cfg.MQTT.PollInterval != 10*time.Second {
		t.Errorf("bridge = %+v", cfg.MQTT)
	}

	if err := db.MQTTBridges().Update(ctx, &MQTTBridge{ProfileID: 999}); !errors.Is(err, ErrMQTTBridgeNotFound) {
		t.Errorf("expected ErrMQTTBridgeNotFound, got %v", err)
	}
}

func TestProfiles_CascadeDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	p := &Profile{Name: "garage", Timezone: "UTC"}
	if err := db.Profiles().Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := db.Strips().Save(ctx, &Strip{ProfileID: p.ID, IP: "10.0.0.2"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := db.Profiles().Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := db.Strips().Get(ctx, p.ID); !errors.Is(err, ErrStripNotFound) {
		t.Errorf("expected strip removed with profile, got %v", err)
	}
}

func TestProfiles_SetActive(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	profiles := db.Profiles()

	office := &Profile{Name: "office"}
	if err := profiles.Create(ctx, office); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if office.Timezone != "UTC" || office.IsActive {
		t.Errorf("created profile = %+v", office)
	}

	if err := profiles.SetActive(ctx, office.ID); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	active, err := profiles.GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active.ID != office.ID {
		t.Errorf("active = %q, want office", active.Name)
	}

	def, err := profiles.GetByName(ctx, "default")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if def.IsActive {
		t.Error("default profile still active")
	}

	all, err := profiles.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].Name != "default" || all[1].Name != "office" {
		t.Errorf("List = %d profiles", len(all))
	}

	if err := profiles.SetActive(ctx, 999); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("expected ErrProfileNotFound, got %v", err)
	}
	if active, _ := profiles.GetActive(ctx); active == nil || active.ID != office.ID {
		t.Error("failed SetActive changed the active profile")
	}
	if _, err := profiles.Get(ctx, 999); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Get: expected ErrProfileNotFound, got %v", err)
	}
}

func TestAPIServers_Save(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	cfg, err := db.ActiveConfig(ctx)
	if err != nil {
		t.Fatalf("ActiveConfig: %v", err)
	}

	a := &APIServer{ProfileID: cfg.Profile.ID, Host: "127.0.0.1", Port: 9090}
	if err := db.APIServers().Save(ctx, a); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if a.ID != cfg.APIServer.ID {
		t.Errorf("upsert created a new row: %d != %d", a.ID, cfg.APIServer.ID)
	}

	got, err := db.APIServers().Get(ctx, cfg.Profile.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Address() != "127.0.0.1:9090" {
		t.Errorf("Address = %q", got.Address())
	}

	if err := db.APIServers().Save(ctx, &APIServer{ProfileID: cfg.Profile.ID, Port: 70000}); err == nil {
		t.Error("expected error for out of range port")
	}
}

func TestConfig_NoAPIServer(t *testing.T) {
	cfg := &Config{}
	if cfg.APIAddress() != "0.0.0.0:8080" {
		t.Errorf("APIAddress = %q", cfg.APIAddress())
	}
	if cfg.Timezone() != "UTC" {
		t.Errorf("Timezone = %q", cfg.Timezone())
	}
}

func TestResolvePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv(PathEnv, "")

	got, err := resolvePath("")
	if err != nil {
		t.Fatalf("resolvePath: %v", err)
	}
	if want := filepath.Join(home, ".config", "stripctl", "stripctl.db"); got != want {
		t.Errorf("default = %q, want %q", got, want)
	}

	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got, _ := resolvePath(""); got != filepath.Join("/xdg", "stripctl", "stripctl.db") {
		t.Errorf("xdg = %q", got)
	}

	t.Setenv(PathEnv, "/data/strip.db")
	if got, _ := resolvePath(""); got != "/data/strip.db" {
		t.Errorf("env override = %q", got)
	}

	if got, _ := resolvePath("~/strips/a.db"); got != filepath.Join(home, "strips", "a.db") {
		t.Errorf("tilde = %q", got)
	}
}

func TestOpen_UsesEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "env.db")
	t.Setenv(PathEnv, path)

	db, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = db.Close() }()
	if db.Path() != path {
		t.Errorf("Path = %q, want %q", db.Path(), path)
	}
}
