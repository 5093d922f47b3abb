package util

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
)

func Warn(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}

func GetFirstLineOfFile(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}

	return ""
}

func DoesDirExist(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.IsDir()
}

func DoesFileExist(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return !info.IsDir()
}

func IsUefiSystem() bool {
	return DoesDirExist("/sys/firmware/efi/")
}

func WasRunAsRoot() bool {
	currentUser, err := user.Current()
	if err != nil {
		fmt.Printf("Unable to get current user: %s\n", err)
	}
	return currentUser.Username == "root"
}

// AvailableMemKB reads MemAvailable from /proc/meminfo.
// Returns 0 if the field is missing or unreadable.
func AvailableMemKB() int64 {
	file, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb
	}

	return 0
}

// EnvBool treats any non-empty value except "0", "false" and "no" as set.
func EnvBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "", "0", "false", "no":
		return false
	default:
		return true
	}
}
