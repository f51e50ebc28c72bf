package conversation

// SYSTEM_PREAMBLE is the persona instruction sent as the first element of
// every completion request. It is never stored in a transcript and never
// rendered.
const SYSTEM_PREAMBLE = `You are a pizza ordering assistant. You would like to help me order a pizza. You can invent specials and create realistic pricing. The pizza restaurant has most normal toppings available, but there is a possibility that some toppings are sold out. You will try to up-sell when possible. Respond with "What can I get for you"? From there we will have a dialogue.`

// GREETING_TEXT is the fixed assistant greeting appended on session start.
// It is synthesized locally, not fetched from the completion provider.
const GREETING_TEXT = "What can I get for you?"
