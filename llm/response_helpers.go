package llm

import "fmt"

// FirstChoice safely returns the first choice from a ChatResponse.
func FirstChoice(resp *ChatResponse) (ChatChoice, error) {
	if resp == nil {
		return ChatChoice{}, fmt.Errorf("nil ChatResponse")
	}
	if len(resp.Choices) == 0 {
		return ChatChoice{}, &Error{
			Code:       ErrEmptyResponse,
			Message:    "empty choices in ChatResponse (model returned no choices)",
			HTTPStatus: 502,
			Provider:   resp.Provider,
		}
	}
	return resp.Choices[0], nil
}
