// Package labelsmith provides a Go client for the labelsmith annotation API.
//
// The client hands out ranked annotation tasks, submits label decisions and
// reads the aggregated results of a labeling run:
//
//	client, _ := labelsmith.New("http://localhost:8080",
//	    labelsmith.WithAPIKey("secret"),
//	)
//	task, _ := client.NextTask(ctx, "annotator-1")
//	_ = client.SubmitDecision(ctx, labelsmith.Decision{
//	    AnnotatorID: "annotator-1",
//	    ItemID:      task.ItemID,
//	    Label:       task.Candidates[0].Label,
//	    SessionID:   task.SessionID,
//	})
//	consensus, _ := client.Consensus(ctx)
package labelsmith
