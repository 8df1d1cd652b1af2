package config

import (
	"bufio"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/shine-emu/fiesta/lib/logger"
)

const DefaultConfPath = "fiesta.conf"

// Properties holds global config properties
var Properties *ServerProperties

// ServerProperties defines global config properties
type ServerProperties struct {
	Bind       string `cfg:"bind"`
	Port       int    `cfg:"port"`
	Workers    int    `cfg:"workers"`
	MaxClients int    `cfg:"maxclients"`

	// AcceptFatal aborts the reactor on an unexpected accept error instead
	// of logging and continuing
	AcceptFatal bool   `cfg:"accept-fatal"`
	MetricsBind string `cfg:"metrics-bind"`
	LogDir      string `cfg:"logdir"`
}

func init() {
	// default config
	Properties = &ServerProperties{
		Bind:       "0.0.0.0",
		Port:       9010,
		Workers:    4,
		MaxClients: 1000,
		LogDir:     "logs",
	}
}

func parse(src io.Reader) *ServerProperties {
	config := &ServerProperties{}

	// read config file
	rawMap := make(map[string]string)
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > 0 && line[0] == '#' {
			continue
		}
		pivot := strings.IndexAny(line, " ")
		if pivot > 0 && pivot < len(line)-1 { // separator found
			key := line[0:pivot]
			value := strings.Trim(line[pivot+1:], " ")
			rawMap[strings.ToLower(key)] = value
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Fatal(err)
	}

	// fill fields tagged cfg from the raw map
	t := reflect.TypeOf(config)
	v := reflect.ValueOf(config)
	n := t.Elem().NumField()
	for i := 0; i < n; i++ {
		field := t.Elem().Field(i)
		fieldVal := v.Elem().Field(i)
		key, ok := field.Tag.Lookup("cfg")
		if !ok {
			key = field.Name
		}
		value, ok := rawMap[strings.ToLower(key)]
		if ok {
			switch field.Type.Kind() {
			case reflect.String:
				fieldVal.SetString(value)
			case reflect.Int:
				intValue, err := strconv.ParseInt(value, 10, 64)
				if err == nil {
					fieldVal.SetInt(intValue)
				}
			case reflect.Bool:
				fieldVal.SetBool(toBool(value))
			}
		}
	}
	return config
}

// Setup reads the config file and stores properties into Properties
func Setup(configFilename string) {
	if configFilename == "" {
		if defaultConfigFileExists() {
			configFilename = DefaultConfPath
		} else {
			return // keep defaults
		}
	}
	file, err := os.Open(configFilename)
	if err != nil {
		panic(err)
	}
	defer file.Close()
	Properties = parse(file)
}

func defaultConfigFileExists() bool {
	info, err := os.Stat(DefaultConfPath)
	return err == nil && !info.IsDir()
}

func toBool(s string) bool {
	ls := strings.ToLower(s)
	switch ls {
	case "true", "yes", "t", "y":
		return true
	default:
		return false
	}
}
