// Package rows provides the `rowlease` row commands.
//
// Every command reaches the table through a transports.RowsTransport. By
// default the CLI opens the configured backend in-process; with --server
// (or ROWLEASE_SERVER) it talks to a running `rowlease serve` instead, which
// is how several workers share one Pebble store.
//
// Usage
//
//	rowlease init --header deal_id,status,processing_lock,locked_by,ai_notes
//	rowlease append --set deal_id=d-1 --set status=NEW
//
//	# claim the first NEW row; prints null when nothing is eligible
//	rowlease claim --wanted NEW --claimed PROCESSING --max-lease-age 30m
//	rowlease claim --wanted READY_TO_POST --claimed POSTING \
//	    --filter "row.price != '' && row_number > 10"
//
//	rowlease show 7
//	rowlease show --find deal_id=d-1
//	rowlease update 7 --set price=12.50
//	rowlease complete 7 --status SCORED --set score=0.82
//	rowlease fail 7 --error "upstream timeout"
//	rowlease release 7
//
//	rowlease deadletter --input ERROR --last-error "timeout" --max-fails 3
//
// Output
//
// Commands print one JSON document on stdout: the row snapshot for row
// commands, {"row": n} for append and the visited rows for deadletter.
package rows
