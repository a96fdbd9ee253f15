package taxclean

import (
	"slices"
	"strings"
	"time"
)

// ClientStatus is the lifecycle status of a client.
type ClientStatus string

// ClientActive is the status of every client created by the resolver.
const ClientActive ClientStatus = "ACTIVE"

// Client is the registry entry for one broker account.
type Client struct {
	AccountID          string              `json:"account_id"`
	Username           string              `json:"username"`
	DisplayName        string              `json:"client_display_name"`
	DisplayNameHistory []DisplayNameChange `json:"display_name_history,omitempty"`
	LinkedUsernames    []string            `json:"linked_usernames,omitempty"`
	Status             ClientStatus        `json:"status"`
	YearsOnFile        []TaxYear           `json:"years_on_file"`
	ReportCount        int                 `json:"report_count"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// DisplayNameChange records one rename of a client.
type DisplayNameChange struct {
	Previous  string    `json:"previous"`
	NewValue  string    `json:"new_value"`
	ChangedAt time.Time `json:"changed_at"`
}

// Clone returns a deep copy of c.
func (c Client) Clone() Client {
	c.DisplayNameHistory = slices.Clone(c.DisplayNameHistory)
	c.LinkedUsernames = slices.Clone(c.LinkedUsernames)
	c.YearsOnFile = slices.Clone(c.YearsOnFile)
	return c
}

// RecordReport counts one more stored statement for year, keeping the years
// on file sorted and unique.
func (c *Client) RecordReport(year TaxYear, now time.Time) {
	c.ReportCount++
	if i, found := slices.BinarySearch(c.YearsOnFile, year); !found {
		c.YearsOnFile = slices.Insert(c.YearsOnFile, i, year)
	}
	c.UpdatedAt = now
}

// IdentityConflictDetail describes a username that does not match the one on
// file for an account.
type IdentityConflictDetail struct {
	AccountID        string `json:"account_id"`
	ExistingUsername string `json:"existing_username"`
	IncomingUsername string `json:"incoming_username"`
}

// ClientResolution is the outcome of ResolveClient. Client is the state the
// registry should hold after the submission is committed; it is the stored
// client, untouched, when there is a conflict.
type ClientResolution struct {
	Client   Client                  `json:"client"`
	Action   ClientAction            `json:"action"`
	Conflict *IdentityConflictDetail `json:"conflict,omitempty"`
}

// ResolveClient matches a statement header against the client registry. It
// does not write: the caller commits Client once the submission is accepted.
//
// Usernames are compared case-insensitively. A mismatch is never resolved
// automatically.
func ResolveClient(clients ClientStore, h *Header, now time.Time) ClientResolution {
	existing, ok := clients.Client(h.AccountID)
	if !ok {
		return ClientResolution{
			Action: CreateClient,
			Client: Client{
				AccountID:       h.AccountID,
				Username:        h.Username,
				DisplayName:     h.ClientDisplayName,
				LinkedUsernames: []string{h.Username},
				Status:          ClientActive,
				YearsOnFile:     []TaxYear{},
				CreatedAt:       now,
				UpdatedAt:       now,
			},
		}
	}

	if !strings.EqualFold(existing.Username, h.Username) {
		return ClientResolution{
			Action: ManualReviewRequired,
			Client: existing,
			Conflict: &IdentityConflictDetail{
				AccountID:        h.AccountID,
				ExistingUsername: existing.Username,
				IncomingUsername: h.Username,
			},
		}
	}

	c := existing.Clone()
	c.UpdatedAt = now
	if h.ClientDisplayName != "" && h.ClientDisplayName != c.DisplayName {
		c.DisplayNameHistory = append(c.DisplayNameHistory, DisplayNameChange{
			Previous:  c.DisplayName,
			NewValue:  h.ClientDisplayName,
			ChangedAt: now,
		})
		c.DisplayName = h.ClientDisplayName
	}
	if !slices.Contains(c.LinkedUsernames, h.Username) {
		c.LinkedUsernames = append(c.LinkedUsernames, h.Username)
	}

	action := UpdateClient
	if c.ReportCount == 0 {
		action = CreateClient
	}
	return ClientResolution{Action: action, Client: c}
}
