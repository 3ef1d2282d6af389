package account

import (
	"strings"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// ActivationOtpKeyPrefix prefixes the one-time code key of phone activation.
const ActivationOtpKeyPrefix = "account-activation-otp"

// NormalizeEmail trims and lowercases an address. Every entry point
// applies it, so lookups and uniqueness are case insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone trims a phone number and rewrites a valid one in E.164,
// so `+1 415 555 2671` and `+14155552671` are the same account key.
// Numbers that do not parse are returned trimmed for validation to reject.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	num, err := phonenumbers.Parse(phone, "")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return phone
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// ComposeActivationOtpKey builds the OTP key for an account phone.
func ComposeActivationOtpKey(id uuid.UUID) string {
	return ActivationOtpKeyPrefix + "-" + id.String()
}

// ParseRoles turns the stored role text, e.g. `{admin,editor}`, into a
// list. Empty entries and duplicates are dropped, order is kept.
func ParseRoles(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "{")
	raw = strings.TrimSuffix(raw, "}")

	roles := []string{}
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		role := strings.Trim(strings.TrimSpace(part), `"`)
		if role == "" || seen[role] {
			continue
		}
		seen[role] = true
		roles = append(roles, role)
	}
	return roles
}

// FormatRoles is the inverse of ParseRoles.
func FormatRoles(roles []string) string {
	clean := ParseRoles(strings.Join(roles, ","))
	return "{" + strings.Join(clean, ",") + "}"
}

// AvatarURL joins the hosting base and an avatar reference. A missing
// reference yields nil.
func AvatarURL(hosting string, reference *string) *string {
	if reference == nil || *reference == "" {
		return nil
	}
	url := strings.TrimRight(hosting, "/") + "/" + *reference
	return &url
}

func newSessionPayload(acc *Account, hosting string) SessionPayload {
	return SessionPayload{
		ID:        acc.ID,
		Roles:     acc.RoleList(),
		FirstName: acc.FirstName,
		LastName:  acc.LastName,
		AvatarURL: AvatarURL(hosting, acc.Avatar),
	}
}

func newProfile(acc *Account, hosting string) Profile {
	return Profile{
		ID:                   acc.ID,
		Email:                acc.Email,
		FirstName:            acc.FirstName,
		LastName:             acc.LastName,
		MobilePhone:          acc.MobilePhone,
		EmailConfirmed:       acc.EmailConfirmed,
		MobilePhoneConfirmed: acc.MobilePhoneConfirmed,
		Active:               acc.Active,
		AvatarURL:            AvatarURL(hosting, acc.Avatar),
		Roles:                acc.RoleList(),
	}
}
