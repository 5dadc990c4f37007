package chatcall

// BuildSingleQA wraps question as the only message of a conversation, in the system
// role, and returns it in the tagged JSON form. Any string is accepted, including "".
func BuildSingleQA(question string) JSONPayload {
	return MustJSON([]Message{{Role: RoleSystem, Content: question}})
}
