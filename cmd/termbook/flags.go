package main

import "strings"

// stringSlice 收集可重复的 flag，例如 -c key=value。
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// featureList 接受重复或逗号分隔的 feature 名：--enable a,b --enable c。
type featureList []string

func (f *featureList) String() string {
	return strings.Join(*f, ",")
}

func (f *featureList) Set(v string) error {
	for _, name := range strings.Split(v, ",") {
		if name = strings.TrimSpace(name); name != "" {
			*f = append(*f, name)
		}
	}
	return nil
}
