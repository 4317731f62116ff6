package jobqueue

import (
	"bytes"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"

	"github.com/House-of-Events/Annabeth/internal/domain/notification"
)

const maxLoggedBodyBytes = 4096

func encodeMessage(msg notification.Message) ([]byte, error) {
	body, err := sonic.Marshal(msg)
	if err != nil {
		return nil, crerr.Wrapf(err, "marshal message for fixture %d", msg.FixtureID)
	}
	return body, nil
}

func truncateForLog(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	return value[:max] + "...(truncated)"
}

func decodeJSON(raw []byte, out any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return sonic.Unmarshal(raw, out)
}
