package intent

import "errors"

// errNoJSON marks model output with no extractable JSON object; callers
// degrade to the rule stage.
var errNoJSON = errors.New("no JSON object in model output")
