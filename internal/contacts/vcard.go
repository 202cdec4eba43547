package contacts

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/emersion/go-vcard"
	"github.com/fleetchat/fleetd/internal/paths"
)

// LoadVCard adds every card in r to the directory and returns how many
// were added. Cards without a usable name are skipped.
func (d *Directory) LoadVCard(r io.Reader) (int, error) {
	dec := vcard.NewDecoder(r)
	n := 0
	for {
		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("decode vcard %d: %w", n+1, err)
		}
		c, ok := fromCard(card)
		if !ok {
			d.logger.Warn("skipping vcard without a name", "index", n+1)
			continue
		}
		d.Add(c)
		n++
	}
	return n, nil
}

// Open returns the sample directory when path is empty, otherwise a
// directory loaded from the vCard file at path.
func Open(path string, logger *slog.Logger) (*Directory, error) {
	if path == "" {
		return Sample(logger), nil
	}
	d := NewDirectory(logger)
	if _, err := d.LoadFile(path); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadFile adds the cards of a .vcf file. A leading ~ is expanded.
func (d *Directory) LoadFile(path string) (int, error) {
	f, err := os.Open(paths.ExpandHome(path))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n, err := d.LoadVCard(f)
	if err != nil {
		return n, fmt.Errorf("%s: %w", path, err)
	}
	d.logger.Info("contacts loaded", "path", path, "count", n)
	return n, nil
}

// ExportVCard writes every contact as a vCard 4.0 card.
func (d *Directory) ExportVCard(w io.Writer) error {
	enc := vcard.NewEncoder(w)
	for _, c := range d.All() {
		if err := enc.Encode(toCard(c)); err != nil {
			return fmt.Errorf("encode %q: %w", c.Name, err)
		}
	}
	return nil
}

func toCard(c Contact) vcard.Card {
	card := make(vcard.Card)
	card.SetValue(vcard.FieldVersion, "4.0")
	card.SetValue(vcard.FieldUID, strconv.Itoa(c.ID))
	card.SetValue(vcard.FieldFormattedName, c.Name)
	setIf := func(k, v string) {
		if v != "" {
			card.SetValue(k, v)
		}
	}
	setIf(vcard.FieldTitle, c.Title)
	setIf(vcard.FieldEmail, c.Email)
	setIf(vcard.FieldTelephone, c.Phone)
	setIf(vcard.FieldOrganization, c.Department)
	setIf(vcard.FieldPhoto, c.AvatarURL)
	return card
}

func fromCard(card vcard.Card) (Contact, bool) {
	c := Contact{
		Title:     card.PreferredValue(vcard.FieldTitle),
		Email:     card.PreferredValue(vcard.FieldEmail),
		Phone:     card.PreferredValue(vcard.FieldTelephone),
		AvatarURL: card.PreferredValue(vcard.FieldPhoto),
	}
	c.Name = strings.TrimSpace(card.PreferredValue(vcard.FieldFormattedName))
	if c.Name == "" {
		c.Name = structuredName(card.Value(vcard.FieldName))
	}
	if c.Name == "" {
		return Contact{}, false
	}
	c.Department = department(card.PreferredValue(vcard.FieldOrganization))
	if id, err := strconv.Atoi(card.Value(vcard.FieldUID)); err == nil && id > 0 {
		c.ID = id
	}
	return c, true
}

// structuredName turns N (family;given;additional;prefix;suffix) into
// "Given Family".
func structuredName(n string) string {
	parts := strings.Split(n, ";")
	if len(parts) < 2 {
		return strings.TrimSpace(n)
	}
	return strings.TrimSpace(strings.TrimSpace(parts[1]) + " " + strings.TrimSpace(parts[0]))
}

// department picks the most specific ORG unit: "Acme;Engineering"
// yields "Engineering".
func department(org string) string {
	parts := strings.Split(org, ";")
	for i := len(parts) - 1; i >= 0; i-- {
		if p := strings.TrimSpace(parts[i]); p != "" {
			return p
		}
	}
	return ""
}
