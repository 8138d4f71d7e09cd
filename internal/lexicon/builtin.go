package lexicon

var builtinEntries = []Entry{
	{Prompt: "What is your name?", Answer: "My name is André."},
	{Prompt: "Where do you work?", Answer: "I work at a bank."},
	{Prompt: "What do you do?", Answer: "I am a software developer."},
	{Prompt: "Do you like technology?", Answer: "Yes, I like technology."},
	{Prompt: "How often do you study English?", Answer: "I study English every day."},
	{Prompt: "Are you ready to speak faster?", Answer: "Yes, I am ready to speak faster."},
}

// Builtin returns the six-question introductory lesson that ships with the
// binary.
func Builtin() *Lexicon {
	l, err := New("introductions", builtinEntries)
	if err != nil {
		panic(err)
	}
	return l
}
