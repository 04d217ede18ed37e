package bkclient

import (
	"time"

	"github.com/quayledger/bkclient/internal/bktable"
	"github.com/quayledger/bkclient/internal/bkwire"
	"github.com/sirupsen/logrus"
)

// route looks up the completion for an inbound response and, if found,
// schedules its callback on the ordered dispatcher keyed by ledger_id.
// Unknown txn ids are logged and dropped — they should not occur for a
// well-behaved peer, but a stray or duplicate reply must never panic
// the transport reader.
//
// Correlation is by txn_id alone, matching §3's completion key
// definition. The LAC fallback lookup described in spec §4.5 ("first
// try (ledger_id, reported_entry_id), then (ledger_id,
// LAST_ADD_CONFIRMED)") is a consequence of an older, ledger/entry-keyed
// completion table in the source; once unified to a single txn_id-keyed
// table (spec §9's first Open Question), the same txn_id the request
// carried is echoed back in the response header regardless of which
// concrete entry_id the server resolved the sentinel to, so a plain
// Remove(txn_id) already delivers the callback for the correct original
// request — see DESIGN.md.
func (c *Client) route(resp *bkwire.Response) {
	var pending = c.table.Remove(resp.Header.TxnID)
	if pending == nil {
		c.logger.WithFields(logrus.Fields{
			"txn_id":     resp.Header.TxnID,
			"op":         resp.Header.Op.String(),
			"ledger_tag": correlationTag(resp.LedgerID),
		}).Debug("response for unknown or already-resolved txn id, dropping")
		return
	}

	c.dispatcher.Submit(pending.LedgerID, func() {
		switch pending.Op {
		case bktable.OpAdd:
			c.handleAddResponse(pending, resp)
		case bktable.OpRead:
			c.handleReadResponse(pending, resp)
		default:
			c.logger.WithFields(logrus.Fields{
				"txn_id":     resp.Header.TxnID,
				"ledger_tag": correlationTag(pending.LedgerID),
			}).Error("pending completion has unrecognized op, dropping")
		}
	})
}

func (c *Client) handleAddResponse(pending *bktable.Pending, resp *bkwire.Response) {
	var kind = errorKindFromStatus(resp.Status, bkwire.OpAdd)
	c.recordLatency("AddEntry", pending.StartedAt, kind)
	pending.Callback(kind, resp.LedgerID, resp.EntryID, []byte(resp.Peer), pending.Ctx)
}

func (c *Client) handleReadResponse(pending *bktable.Pending, resp *bkwire.Response) {
	var kind = errorKindFromStatus(resp.Status, bkwire.OpRead)
	c.recordLatency("ReadEntry", pending.StartedAt, kind)
	var body []byte
	if kind == Ok {
		body = resp.Body
	}
	pending.Callback(kind, resp.LedgerID, resp.EntryID, body, pending.Ctx)
}

func (c *Client) recordLatency(op string, startedAt time.Time, kind ErrorKind) {
	var latency = time.Since(startedAt)
	if kind == Ok {
		c.metrics.RegisterSuccessfulEvent(op, latency)
	} else {
		c.metrics.RegisterFailedEvent(op, latency)
	}
}
