package extract

import "strings"

// ParseDoc parses a function's doc comment into an Annotation. The second
// return is false when the comment carries no usable description, which
// excludes the function.
//
// Tag lines start with "@". Recognized tags: @param <name> <text>,
// @resource, @uri <template>, @mimeType <value>, @tool [name],
// @prompt [name]. Every non-blank line that is not a tag accumulates into
// the description, wherever it sits. A resource tag outranks a prompt tag,
// which outranks a tool tag.
func ParseDoc(doc string) (Annotation, bool) {
	ann := Annotation{ParamDocs: map[string]string{}}
	if strings.TrimSpace(doc) == "" {
		return ann, false
	}

	var desc []string
	sawPrompt := false
	sawResource := false

	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))
		if !strings.HasPrefix(line, "@") {
			if line != "" {
				desc = append(desc, line)
			}
			continue
		}

		tag, rest := splitTag(line[1:])
		switch tag {
		case "param":
			name, text := splitTag(rest)
			if name != "" {
				ann.ParamDocs[name] = text
			}
		case "resource":
			sawResource = true
		case "uri":
			sawResource = true
			ann.URI = rest
		case "mimeType", "mimetype":
			ann.MimeType = strings.Trim(rest, `"'`)
		case "prompt":
			sawPrompt = true
			if rest != "" {
				ann.Name = firstField(rest)
			}
		case "tool":
			if rest != "" && !sawPrompt && !sawResource {
				ann.Name = firstField(rest)
			}
		}
	}

	switch {
	case sawResource:
		ann.Kind = KindResource
	case sawPrompt:
		ann.Kind = KindPrompt
	default:
		ann.Kind = KindTool
	}

	ann.Description = strings.Join(desc, " ")
	return ann, ann.Description != ""
}

func splitTag(s string) (head, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
