package status

import (
	"encoding/json"
	"fmt"
)

// ConsoleSink prints each snapshot to stdout, adapted from this
// codebase's console reporter for packet output.
type ConsoleSink struct {
	Format string // "json" or "text", default "text"
}

// NewConsoleSink returns a text-format console sink.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{Format: "text"}
}

func (c *ConsoleSink) Publish(s Snapshot) {
	if c.Format == "json" {
		c.publishJSON(s)
		return
	}
	c.publishText(s)
}

func (c *ConsoleSink) publishJSON(s Snapshot) {
	data, err := json.Marshal(s)
	if err != nil {
		fmt.Println("status: json marshal failed:", err)
		return
	}
	fmt.Println(string(data))
}

func (c *ConsoleSink) publishText(s Snapshot) {
	fmt.Printf("[%s] %s written=%d free=%d bandwidth=%.1fB/s topics=%d\n",
		s.Status, s.BagfileName, s.TotalBytesWritten, s.FreeBytes, s.AggregateBandwidth, len(s.PerTopic))
	for _, t := range s.PerTopic {
		fmt.Printf("  %-30s pubs=%d rate=%.2fHz bw=%.1fB/s total=%d cur_bag=%d\n",
			t.Name, t.Publishers, t.Rate, t.Bandwidth, t.TotalMessages, t.MessagesInCurrentBag)
	}
}
