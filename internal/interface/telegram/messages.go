package telegram

var thinkingFrames = []string{
	"🤔 Thinking",
	"🤔 Thinking.",
	"🤔 Thinking..",
	"🤔 Thinking...",
	"🧠 Processing",
	"🧠 Processing.",
	"🧠 Processing..",
	"🧠 Processing...",
	"💭 Contemplating",
	"💭 Contemplating.",
	"💭 Contemplating..",
	"💭 Contemplating...",
}

const (
	textWelcome = "👋 Hello! I'm your AI English teacher. " +
		"We can have a conversation about your learning, homework, or anything related to English.\n\n" +
		"You can:\n" +
		"• Ask for new homework\n" +
		"• Discuss your submissions\n" +
		"• Get feedback\n" +
		"• Analyze your progress\n\n" +
		"To end our conversation, just send /leave"

	textGoodbye = "Conversation ended. Your progress and memory are saved. " +
		"You can start a new conversation anytime with /ai_teacher"

	textStudentsOnly = "Sorry, AI teacher is only available for students. " +
		"Teachers have access to other commands - use /help to see them."

	textNotRegistered = "I don't know you yet. Please register with /start first."

	textRoleCheckFailed = "Error checking user role. Please try again later or contact support."

	textAlreadyActive = "You're already talking with the AI teacher. " +
		"Send /leave to end the current conversation first."

	textStartFirst = "Please start a conversation with /ai_teacher first."

	textStillThinking = "I'm still working on your previous message. Please wait for my answer."

	textRoundFailed = "I'm sorry, I encountered an error while processing your message. " +
		"Please try again or start a new conversation with /ai_teacher"
)
