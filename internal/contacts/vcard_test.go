package contacts

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleVCF = "BEGIN:VCARD\r\n" +
	"VERSION:4.0\r\n" +
	"FN:Carol Danvers\r\n" +
	"TITLE:Pilot\r\n" +
	"EMAIL:carol@example.com\r\n" +
	"TEL:+1-555-000-1111\r\n" +
	"ORG:Acme;Engineering\r\n" +
	"END:VCARD\r\n" +
	"BEGIN:VCARD\r\n" +
	"VERSION:3.0\r\n" +
	"N:Prince;Diana;;;\r\n" +
	"ORG:Sales\r\n" +
	"END:VCARD\r\n" +
	"BEGIN:VCARD\r\n" +
	"VERSION:4.0\r\n" +
	"EMAIL:nobody@example.com\r\n" +
	"END:VCARD\r\n"

func TestLoadVCard(t *testing.T) {
	d := NewDirectory(nil)
	n, err := d.LoadVCard(strings.NewReader(sampleVCF))
	if err != nil {
		t.Fatalf("LoadVCard() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("LoadVCard() added %d, want 2 (nameless card skipped)", n)
	}

	carol := d.Lookup("carol", "")
	if len(carol) != 1 {
		t.Fatalf("Lookup(carol) = %v", carol)
	}
	c := carol[0]
	if c.Title != "Pilot" || c.Email != "carol@example.com" || c.Phone != "+1-555-000-1111" || c.Department != "Engineering" {
		t.Errorf("carol = %+v", c)
	}

	diana := d.Lookup("diana prince", "sales")
	if len(diana) != 1 {
		t.Errorf("structured name not assembled: %+v", d.All())
	}
}

func TestExportVCard_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := Sample(nil).ExportVCard(&buf); err != nil {
		t.Fatalf("ExportVCard() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "FN:Alice Wonderland") {
		t.Errorf("export missing FN:\n%s", out)
	}

	d := NewDirectory(nil)
	if _, err := d.LoadVCard(&buf); err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := d.All()
	want := Sample(nil).All()
	if len(got) != len(want) {
		t.Fatalf("reloaded %d contacts, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("contact %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestOpen(t *testing.T) {
	d, err := Open("", nil)
	if err != nil || d.Len() != 2 {
		t.Fatalf("Open(\"\") = %v contacts, %v", d.Len(), err)
	}

	path := filepath.Join(t.TempDir(), "people.vcf")
	if err := os.WriteFile(path, []byte(sampleVCF), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err = Open(path, nil)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", path, err)
	}
	if d.Len() != 2 {
		t.Errorf("Len() = %d, want 2", d.Len())
	}

	if _, err := Open(filepath.Join(t.TempDir(), "missing.vcf"), nil); err == nil {
		t.Error("Open(missing) should fail")
	}
}

func TestDepartment(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"Sales":            "Sales",
		"Acme;Engineering": "Engineering",
		"Acme;;":           "Acme",
	}
	for in, want := range tests {
		if got := department(in); got != want {
			t.Errorf("department(%q) = %q, want %q", in, got, want)
		}
	}
}
