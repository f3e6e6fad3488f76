package bconfig

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/relex/gotils/logger"
	"github.com/relex/peer-forwarder/util"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// ConfigHolder holds one implementation of a config interface, e.g. the discovery config of a node
//
// The implementation is chosen from the registered constructors of C by the "type" property, which must come first
type ConfigHolder[C BaseConfig] struct {
	Location string `yaml:"-"`
	Value    C
}

func (holder ConfigHolder[C]) String() string {
	return fmt.Sprint(holder.Value)
}

// IsEmpty checks whether the holder has been populated
func (holder ConfigHolder[C]) IsEmpty() bool {
	return reflect.ValueOf(&holder.Value).Elem().IsZero()
}

// MarshalYAML provides custom marshalling to export readable document. The result is not reversible.
func (holder ConfigHolder[C]) MarshalYAML() (interface{}, error) {
	return holder.Value, nil
}

// UnmarshalYAML provides custom unmarshalling for the implementations of Config
func (holder *ConfigHolder[C]) UnmarshalYAML(value *yaml.Node) error {
	table := getConfigConstructors[C]()

	typeName, typeErr := readTypeName(value)
	if typeErr != nil {
		return util.NewYamlError(value, typeErr.Error())
	}
	createFunc, found := table[typeName]
	if !found {
		return util.NewYamlError(value, fmt.Sprintf(".type: unsupported '%s', available: %s", typeName, table.typeList()))
	}
	holder.Value = createFunc()

	if err := util.DecodeYamlNode(value, holder.Value); err != nil {
		return util.NewYamlError(value, err.Error())
	}
	holder.Location = util.GetYamlLocation(value)
	return nil
}

func readTypeName(value *yaml.Node) (string, error) {
	if value.Kind != yaml.MappingNode {
		return "", fmt.Errorf("not an object")
	}
	if len(value.Content) < 2 {
		return "", fmt.Errorf(".type is undefined")
	}
	if value.Content[0].Kind != yaml.ScalarNode || value.Content[0].Value != "type" {
		return "", fmt.Errorf(".type is not the first property, which is: %s", value.Content[0].Value)
	}
	return value.Content[1].Value, nil
}

// ConfigCreatorTable maps "type" names to the constructors of config implementations
type ConfigCreatorTable[C BaseConfig] map[string]func() C

func (table ConfigCreatorTable[C]) typeList() string {
	names := maps.Keys(table)
	slices.Sort(names)
	return strings.Join(names, ", ")
}

// registered tables by config interface, populated from init() only
var configCreatorTables = make(map[reflect.Type]interface{})

// RegisterConfigConstructors registers the config constructors for the config interface C
//
// It can only be called once for each C
func RegisterConfigConstructors[C BaseConfig](table ConfigCreatorTable[C]) {
	c := reflect.TypeOf((*C)(nil)).Elem()
	if _, exists := configCreatorTables[c]; exists {
		logger.Panicf("already registered %s", c.String())
	}
	configCreatorTables[c] = table
}

func getConfigConstructors[C BaseConfig]() ConfigCreatorTable[C] {
	c := reflect.TypeOf((*C)(nil)).Elem()
	table, exists := configCreatorTables[c]
	if !exists {
		logger.Panicf("not registered %s", c.String())
	}
	return table.(ConfigCreatorTable[C])
}
