package iblcache_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"iblbake/iblcache"
)

func TestKeyStem(t *testing.T) {
	if stem := (iblcache.Key{Name: "env"}).Stem("irradiance"); stem != "env" {
		t.Errorf("stem without source should be: %q but is %q", "env", stem)
	}
	a := iblcache.Key{Name: "env", Source: "a"}
	b := iblcache.Key{Name: "env", Source: "b"}
	if a.Stem("irradiance") == b.Stem("irradiance") {
		t.Error("different sources should have different stems")
	}
	if a.Stem("irradiance") == a.Stem("prefiltered") {
		t.Error("different kinds should have different stems")
	}
	if a.Stem("irradiance") != a.Stem("irradiance") {
		t.Error("stems should be stable")
	}
	if stem := a.Stem("irradiance"); !strings.HasPrefix(stem, "env-") || len(stem) != len("env-")+8 {
		t.Errorf("unexpected stem %q", stem)
	}
}

func TestFileKey(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.hdr")
	b := filepath.Join(dir, "b.hdr")
	if err := os.WriteFile(a, []byte("same"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("same"), 0o644); err != nil {
		t.Fatal(err)
	}
	ka, err := iblcache.FileKey("env", a)
	if err != nil {
		t.Fatal(err)
	}
	kb, err := iblcache.FileKey("env", b)
	if err != nil {
		t.Fatal(err)
	}
	if ka != kb {
		t.Errorf("keys of equal content should match: %v != %v", ka, kb)
	}
	if _, err := iblcache.FileKey("env", filepath.Join(dir, "missing")); !os.IsNotExist(err) {
		t.Errorf("missing file should fail with not exist but got %v", err)
	}
}

func TestSidecar(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		content  string
		withMips bool
		size     int
		mips     int
		ok       bool
	}{
		{"32 ", false, 32, 1, true},
		{"128 6 ", true, 128, 6, true},
		{"128\n6\n", true, 128, 6, true},
		{"128 ", true, 0, 0, false},
		{"x ", false, 0, 0, false},
		{"-4 ", false, 0, 0, false},
		{"", false, 0, 0, false},
	}
	for i, test := range tests {
		path := filepath.Join(dir, "entry.info")
		if err := os.WriteFile(path, []byte(test.content), 0o644); err != nil {
			t.Fatal(err)
		}
		s, err := iblcache.ReadSidecar(path, test.withMips)
		if (err == nil) != test.ok {
			t.Errorf("case %d %q: unexpected error %v", i, test.content, err)
			continue
		}
		if test.ok && (s.Size != test.size || s.MipLevels != test.mips) {
			t.Errorf("case %d %q should be: %d/%d but is %d/%d", i, test.content, test.size, test.mips, s.Size, s.MipLevels)
		}
	}
	if _, err := iblcache.ReadSidecar(filepath.Join(dir, "missing.info"), false); !os.IsNotExist(err) {
		t.Errorf("missing sidecar should fail with not exist but got %v", err)
	}
}
