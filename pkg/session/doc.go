// Package session hosts one voice conversation.
//
// Typed chat (topic lk.chat) and microphone PCM (topic lk.audio) arrive from
// the transport and are queued. A single goroutine drains the queue: audio is
// segmented and transcribed, each user message is appended to the chat
// context, the agent runner produces a reply (executing tools in order), and
// the reply is published as a transcript and optionally spoken.
//
// Usage:
//
//	sess, _ := session.New(session.Config{
//		JobID:     job.ID,
//		Runner:    runner,
//		Chat:      agent.NewChatContext(prompt),
//		Publisher: tr,
//		Inbound:   tr,
//	})
//	_ = sess.Start(ctx)
package session
