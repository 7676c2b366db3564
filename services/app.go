package services

// App bundles the messenger core services behind one handle. The transport
// layer mounts on these; the daemon owns their lifecycle.
type App struct {
	Identities  *IdentityService
	Chats       *ChatService
	Pipeline    *MessagePipeline
	Attachments *AttachmentService
}
