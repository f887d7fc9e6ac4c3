package types

import (
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/teris-io/shortid"
)

const (
	UUID_PREFIX_TENANT              = "tm"
	UUID_PREFIX_BALANCE_TRANSACTION = "bt"
	UUID_PREFIX_INVOICE             = "inv"
	UUID_PREFIX_INVOICE_ITEM        = "item"
	UUID_PREFIX_CREDIT_ALLOCATION   = "ca"
	UUID_PREFIX_USAGE_RECORD        = "ur"
	UUID_PREFIX_WEBHOOK             = "wh"
	UUID_PREFIX_WEBHOOK_LOG         = "whl"
	UUID_PREFIX_WEBHOOK_ATTEMPT     = "wha"
	UUID_PREFIX_ALLOCATION          = "alloc"
	UUID_PREFIX_WEBHOOK_EVENT       = "evt"
	UUID_PREFIX_PROCESSOR_EVENT     = "pevt"
	UUID_PREFIX_COMMENT             = "cmt"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex inv_0ujsswThIGTUYm2K8FjOOfXtY1K
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

var (
	sidGenerator *shortid.Shortid
	once         sync.Once
)

func initializeSID() {
	var err error
	sidGenerator, err = shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		panic("failed to initialize shortid generator: " + err.Error())
	}
}

// GenerateShortIDWithPrefix returns a short ID with a prefix.
// Total length is capped at 12 characters, e.g., `INV-XYZ12A8Q`.
// Used for human-facing invoice numbers.
func GenerateShortIDWithPrefix(prefix string) string {
	once.Do(initializeSID)

	id, err := sidGenerator.Generate()
	if err != nil {
		return ""
	}
	id = strings.ReplaceAll(id, "-", "")

	availableLen := 12 - len(prefix)
	if availableLen <= 0 {
		return ""
	}

	if len(id) > availableLen {
		id = id[:availableLen]
	}

	return strings.ToUpper(fmt.Sprintf("%s%s", prefix, id))
}
