// Package attachments stages inline image attachments as temporary files the
// claude CLI can read, and removes them again once a run ends.
//
// Attachments arrive as data URIs (data:<mime>;base64,<payload>). Stage
// decodes each one into a per-request directory and appends a note listing
// the written paths to the prompt. Staging never fails the request: bad
// entries are skipped and unexpected errors degrade to "no attachments".
//
//	staged := attachments.Stage(ctx, logger, prompt, images, workdir)
//	defer attachments.Cleanup(ctx, logger, staged.Files, staged.Dir)
package attachments
