// Package gmail reads messages from a Gmail mailbox.
//
// The client only lists recent INBOX messages and fetches single messages.
// It never sends, modifies or deletes mail. Bodies are returned as the raw
// text/plain part without any formatting.
//
// A Client is built per delegated call from an HTTP client that already
// carries the account's credential:
//
//	err := authorizer.Invoke(ctx, grant, func(ctx context.Context, hc *http.Client) error {
//	    c, err := factory.New(ctx, hc)
//	    if err != nil {
//	        return err
//	    }
//	    summaries, err = c.ListRecent(ctx, gmail.DefaultListLimit)
//	    return err
//	})
package gmail
