package main

import "fmt"

func completionMain(args []string) {
	shell := "bash"
	if len(args) > 0 && args[0] != "" {
		shell = args[0]
	}
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	default:
		log.Fatalf("unsupported shell: %s (use bash or zsh)", shell)
	}
}

const bashCompletion = `
_termbook_completions()
{
    local cur
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"

    if [[ ${COMP_CWORD} -eq 1 ]]; then
        COMPREPLY=( $(compgen -W "replay completion features --config --shell --cd -c --enable --disable" -- "$cur") )
        return 0
    fi

    case "${COMP_WORDS[1]}" in
        completion)
            COMPREPLY=( $(compgen -W "bash zsh" -- "$cur") )
            ;;
        replay)
            COMPREPLY=( $(compgen -W "--config -o --chunk -c" -f -- "$cur") )
            ;;
        features)
            COMPREPLY=( $(compgen -W "enable disable --config -c" -- "$cur") )
            ;;
        --enable|--disable|enable|disable)
            COMPREPLY=( $(compgen -W "shell_integration margin_compensation block_search" -- "$cur") )
            ;;
    esac
}
complete -F _termbook_completions termbook
`

const zshCompletion = `
#compdef termbook
_termbook() {
    local -a subcmds
    subcmds=('replay:split a recorded session into blocks' 'completion:print shell completions' 'features:list or persist feature flags')
    if (( CURRENT == 2 )); then
        _describe 'command' subcmds
        return
    fi
    case "$words[2]" in
        completion)
            _values 'shell' bash zsh
            ;;
        replay)
            _arguments \
                '--config[Path to config file]' \
                '-o[Write the YAML report to a file]' \
                '--chunk[Bytes fed to the session per write]' \
                '-c[Config key=value override]' \
                '*:recording:_files'
            ;;
        *)
            _arguments \
                '--config[Path to config file]' \
                '--shell[Shell to run]' \
                '--cd[Working directory for the shell]' \
                '-c[Config key=value override]' \
                '--enable[Enable a feature]:feature:(shell_integration margin_compensation block_search)' \
                '--disable[Disable a feature]:feature:(shell_integration margin_compensation block_search)'
            ;;
    esac
}
_termbook "$@"
`
