package util

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetYamlLocation fetches a descriptive location of YAML node
func GetYamlLocation(node *yaml.Node) string {
	var title string
	switch {
	case len(node.HeadComment) > 0:
		title = " " + node.HeadComment
	case len(node.Anchor) > 0:
		title = " " + node.Anchor
	default:
		title = ""
	}
	return fmt.Sprintf("yaml line %d:%d%s", node.Line, node.Column, title)
}

// MarshalYaml marshals the given source to a YAML string
func MarshalYaml(source interface{}) (string, error) {
	writer := &bytes.Buffer{}
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(source); err != nil {
		return "", err
	}
	if err := encoder.Close(); err != nil {
		return "", err
	}
	return writer.String(), nil
}

// NewYamlError creates a new error with location information of YAML node
func NewYamlError(node *yaml.Node, message string) error {
	return fmt.Errorf("yaml line %d:%d: %s", node.Line, node.Column, message)
}

// UnmarshalYamlFile loads and unmarshals YAML from file to interface or pointer to struct
func UnmarshalYamlFile(path string, output interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return UnmarshalYamlReader(file, output)
}

// UnmarshalYamlReader loads and unmarshals YAML from IO reader to interface or pointer to struct
func UnmarshalYamlReader(reader io.Reader, output interface{}) error {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true) // only works outside of custom unmarshalers
	return decoder.Decode(output)
}

// UnmarshalYamlString loads and unmarshals YAML in string to interface or pointer to struct
func UnmarshalYamlString(contents string, output interface{}) error {
	reader := strings.NewReader(contents)
	return UnmarshalYamlReader(reader, output)
}

// DecodeYamlNode decodes the given node into output with unknown fields rejected
//
// yaml.Node.Decode ignores KnownFields of the parent decoder, so the node is re-encoded and decoded strictly
func DecodeYamlNode(node *yaml.Node, output interface{}) error {
	buf := &bytes.Buffer{}
	encoder := yaml.NewEncoder(buf)
	if err := encoder.Encode(node); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}
	decoder := yaml.NewDecoder(buf)
	decoder.KnownFields(true)
	if err := decoder.Decode(output); err != nil {
		return stripYamlPrefix(err)
	}
	return nil
}

// stripYamlPrefix removes line numbers of the re-encoded document which don't match the original file
func stripYamlPrefix(err error) error {
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		messages := make([]string, len(typeErr.Errors))
		for i, msg := range typeErr.Errors {
			if _, after, found := strings.Cut(msg, ": "); found && strings.HasPrefix(msg, "line ") {
				msg = after
			}
			messages[i] = msg
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}
