package orchestrator

import (
	"encoding/json"
	"fmt"
)

const (
	DEFAULT_RESPONSE_SELECTOR = `input[name="cf-turnstile-response"]`
	DEFAULT_SUBMIT_SELECTOR   = `button[type="submit"]`
)

// Builds page script that hands the solution token to the page
type TokenScript func(token string) string

// Write token into the hidden response field and submit the form.
// Falls back to form.submit() when there is no submit control
func FormSubmitScript(responseSelector, submitSelector string) TokenScript {
	if responseSelector == "" {
		responseSelector = DEFAULT_RESPONSE_SELECTOR
	}
	if submitSelector == "" {
		submitSelector = DEFAULT_SUBMIT_SELECTOR
	}

	return func(token string) string {
		return fmt.Sprintf(`const token = %s;
const field = document.querySelector(%s);
if (!field) {
	throw new Error("response field not found");
}
field.value = token;
const submit = document.querySelector(%s);
if (submit) {
	submit.click();
} else if (field.form) {
	field.form.submit();
}`, quote(token), quote(responseSelector), quote(submitSelector))
	}
}

// Pass token to the widget callback, e.g. tsCallback
func CallbackScript(callback string) TokenScript {
	return func(token string) string {
		return fmt.Sprintf(`const token = %s;
const callback = window[%s];
if (typeof callback !== "function") {
	throw new Error("callback not found");
}
callback(token);`, quote(token), quote(callback))
	}
}

func quote(value string) string {
	quoted, _ := json.Marshal(value)
	return string(quoted)
}
