// Package sdk provides a Go client for the iqrproxy HTTP API.
//
// iqrproxy fronts an IQR (interactive query refinement) service: it creates
// refinement sessions, forwards relevance judgements, and returns IQR results
// joined with the matching documents from the image index.
//
//	client, _ := sdk.New("http://localhost:8080", sdk.WithAPIKey("secret"))
//	sess, _ := client.CreateSession(ctx)
//	_, _ = client.Refine(ctx, sess.SID, []string{"uuid-1"}, nil)
//	page, _ := client.Results(ctx, sess.SID, 0, 20)
//	for _, doc := range page.Docs {
//	    fmt.Println(doc.Confidence("confidence"), doc["sha1sum_s_md"])
//	}
package sdk
