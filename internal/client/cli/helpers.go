package cli

import (
	"bytes"
	"encoding/json"

	"github.com/iudanet/fieldsync/internal/client/data"
	"github.com/iudanet/fieldsync/internal/client/intercept"
)

// printWriteWarnings сообщает пользователю о рисках после записи
func (c *Cli) printWriteWarnings(receipt *data.WriteReceipt) {
	if receipt.Status == intercept.StatusQueued {
		c.io.Println("Offline: change saved locally and will sync when the server is reachable.")
	}
	if receipt.Warning != nil {
		c.io.Printf("⚠️  Warning: %v\n", receipt.Warning)
	}
}

// printJSON выводит запись с отступами
func (c *Cli) printJSON(raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := c.io.Write(buf.Bytes())
	return err
}

// compactJSON сжимает JSON в одну строку для табличного вывода
func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
