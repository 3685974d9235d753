package service

// Fixed replies. AI-generated prose is never used for these.
const (
	ReplyGenericFailure     = "Sorry, something went wrong on our side. Please try again in a moment."
	ReplyReset              = "Okay, I've discarded the ticket draft. Tell me whenever you want to start a new one."
	ReplyNeedsVerification  = "Creating a ticket requires a verified company email. Reply with your work email address and I'll send you a verification link."
	ReplyPending            = "We've sent a verification link to your email. Please open it to continue. If the link expires before you use it, send your email address again and I'll send a new one."
	ReplyAskEmail           = "To help with that I need to verify who you are. Please reply with your company email address."
	ReplyEmailUnknown       = "I couldn't find that email in our customer directory. Please check the address or contact your administrator."
	ReplyVerificationSent   = "I've sent a verification link to %s. It is valid for %d minutes."
	ReplyVerificationFailed = "I couldn't send the verification email right now. Please try again in a few minutes."
	ReplyTrackerFailure     = "I couldn't reach the ticketing system right now. Please try again in a few minutes."
	ReplyCreateFailed       = "I couldn't create the ticket right now. Your draft is saved, reply \"yes\" to try again."
	ReplyTicketCreated      = "Your ticket %s has been created. We'll keep you posted here."
	ReplyNotYourTicket      = "Sorry, ticket %s was not reported by you, so I can't share or change it."
	ReplyTicketNotFound     = "I couldn't find ticket %s."
	ReplyAskTicketKey       = "Which ticket do you mean? Please include the ticket key, for example SUP-123."
	ReplyAskComment         = "What should the comment on %s say? For example: comment %s: the issue happens again."
	ReplyCommentAdded       = "Your comment was added to %s."
	ReplyNoTickets          = "You don't have any tickets yet."
	ReplyVerified           = "You're verified. You can now create tickets and check their status here."
	ReplyInvalidPriority    = "Please answer with a priority: P1 (urgent), P2 (high), P3 (medium) or P4 (low)."
	ReplyInvalidDate        = "Please answer with a date as YYYY-MM-DD or DD/MM/YYYY."
)
