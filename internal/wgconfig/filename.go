package wgconfig

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wirevault/backend/internal/models"
)

// DefaultFilenamePattern is used when no pattern has been configured
const DefaultFilenamePattern = "wg-{id}"

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._\-{}]`)

// FormatFilename renders an output filename from a user-configurable
// pattern. Unresolvable placeholders degrade to "unknown" rather than
// failing, unsafe characters are replaced with underscores and the result
// always ends in .conf.
func FormatFilename(pattern string, cred *models.Credential, requester *models.User, index int) string {
	if pattern == "" {
		pattern = DefaultFilenamePattern
	}

	username := "unknown"
	userID := "unknown"
	if requester != nil {
		username = requester.Username
		userID = strconv.FormatUint(uint64(requester.ID), 10)
	} else if cred.AssignedToUserID != nil {
		// No requester record, synthesize from the assignment
		username = "user" + strconv.FormatUint(uint64(*cred.AssignedToUserID), 10)
		userID = strconv.FormatUint(uint64(*cred.AssignedToUserID), 10)
	}

	ipv4 := cred.IPv4Address
	if ipv4 == "" {
		ipv4 = "unknown"
	}

	batchID := "unknown"
	if cred.RequestBatchID != nil && *cred.RequestBatchID != "" {
		batchID = *cred.RequestBatchID
		if len(batchID) > 8 {
			batchID = batchID[:8]
		}
	}

	if index < 1 {
		index = 1
	}

	replacer := strings.NewReplacer(
		"{id}", strconv.FormatUint(uint64(cred.ID), 10),
		"{ipv4_address}", ipv4,
		"{endpoint}", strings.ReplaceAll(cred.Endpoint, ":", "_"),
		"{batch_id}", batchID,
		"{username}", username,
		"{user_id}", userID,
		"{index}", strconv.Itoa(index),
	)

	name := replacer.Replace(pattern)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")

	if !strings.HasSuffix(name, ".conf") {
		name += ".conf"
	}
	return name
}
