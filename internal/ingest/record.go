package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EntityType names the table an import targets.
type EntityType string

const (
	EntityLeads   EntityType = "leads"
	EntityAgents  EntityType = "agents"
	EntityStaff   EntityType = "staff"
	EntityClients EntityType = "clients"
	EntityUsers   EntityType = "users"
)

// Valid reports whether t is an importable entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityLeads, EntityAgents, EntityStaff, EntityClients, EntityUsers:
		return true
	}
	return false
}

// CreatesLead reports whether importing t creates a lead that automation
// rules apply to.
func (t EntityType) CreatesLead() bool {
	return t == EntityLeads || t == EntityAgents
}

// Record is one normalized import row.
type Record struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	State       string
	City        string
	Company     string
	LicenseType string
	Experience  *int
	Source      string
	CampaignID  string
	// Extra holds unrecognized keys; they become lead custom fields.
	Extra map[string]any
}

// HasContact reports whether the record can be keyed by email or phone.
func (r Record) HasContact() bool {
	return r.Email != "" || r.Phone != ""
}

// aliases maps normalized source keys to record fields.
var aliases = map[string]string{
	"first_name":       "first_name",
	"firstname":        "first_name",
	"fname":            "first_name",
	"given_name":       "first_name",
	"last_name":        "last_name",
	"lastname":         "last_name",
	"lname":            "last_name",
	"surname":          "last_name",
	"family_name":      "last_name",
	"name":             "full_name",
	"full_name":        "full_name",
	"fullname":         "full_name",
	"email":            "email",
	"email_address":    "email",
	"e_mail":           "email",
	"phone":            "phone",
	"phone_number":     "phone",
	"mobile":           "phone",
	"mobile_phone":     "phone",
	"cell":             "phone",
	"cell_phone":       "phone",
	"state":            "state",
	"region":           "state",
	"province":         "state",
	"city":             "city",
	"town":             "city",
	"company":          "company",
	"brokerage":        "company",
	"company_name":     "company",
	"license_type":     "license_type",
	"license":          "license_type",
	"licence_type":     "license_type",
	"experience":       "experience",
	"years_experience": "experience",
	"experience_years": "experience",
	"years_licensed":   "experience",
	"source":           "source",
	"lead_source":      "source",
	"campaign_id":      "campaign_id",
	"campaign":         "campaign_id",
}

var (
	keyCleaner = regexp.MustCompile(`[^a-z0-9]+`)
	leadingInt = regexp.MustCompile(`\d+`)
)

// normalizeKey maps "First Name", "firstName" and "first-name" to "first_name".
func normalizeKey(k string) string {
	var b strings.Builder
	for i, r := range k {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && k[i-1] >= 'a' && k[i-1] <= 'z' {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return strings.Trim(keyCleaner.ReplaceAllString(b.String(), "_"), "_")
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// tidyCase title-cases values typed in a single case ("SAN ANTONIO",
// "maria") and leaves mixed-case values alone.
func tidyCase(s string) string {
	if s == "" || (s != strings.ToUpper(s) && s != strings.ToLower(s)) {
		return s
	}
	return cases.Title(language.English).String(s)
}

// NormalizePhone keeps digits only, dropping a leading US country code.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	return d
}

// parseExperience reads "8", 8, "8 years" or "10+" as whole years.
func parseExperience(v any) *int {
	if f, ok := v.(float64); ok {
		n := int(f)
		return &n
	}
	m := leadingInt.FindString(text(v))
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}

// Normalize maps a raw import object onto a Record.
func Normalize(raw map[string]any) Record {
	var rec Record
	var fullName string
	for k, v := range raw {
		field, ok := aliases[normalizeKey(k)]
		if !ok {
			if v != nil {
				if rec.Extra == nil {
					rec.Extra = make(map[string]any)
				}
				rec.Extra[normalizeKey(k)] = v
			}
			continue
		}
		switch field {
		case "first_name":
			rec.FirstName = tidyCase(text(v))
		case "last_name":
			rec.LastName = tidyCase(text(v))
		case "full_name":
			fullName = text(v)
		case "email":
			rec.Email = strings.ToLower(text(v))
		case "phone":
			rec.Phone = NormalizePhone(text(v))
		case "state":
			rec.State = strings.ToUpper(text(v))
		case "city":
			rec.City = tidyCase(text(v))
		case "company":
			rec.Company = text(v)
		case "license_type":
			rec.LicenseType = text(v)
		case "experience":
			rec.Experience = parseExperience(v)
		case "source":
			rec.Source = text(v)
		case "campaign_id":
			rec.CampaignID = text(v)
		}
	}
	if fullName != "" && rec.FirstName == "" && rec.LastName == "" {
		parts := strings.Fields(tidyCase(fullName))
		rec.FirstName = parts[0]
		if len(parts) > 1 {
			rec.LastName = strings.Join(parts[1:], " ")
		}
	}
	if rec.Source == "" {
		rec.Source = "zapier"
	}
	return rec
}
