package shell

// ZshPlugin is the zsh plugin source. It starts a `shlog record` coprocess
// for the shell's lifetime and, from precmd, sends it one record line per
// finished command: start, end, return code and the escaped input.
const ZshPlugin = `# shlog shell plugin, auto-generated, do not edit manually
# Source this file from your ~/.zshrc:
#   source ~/.config/shlog/shlog.plugin.zsh

(( $+commands[shlog] )) || return

zmodload zsh/datetime

export SHLOG_SESSION="$(shlog id --new)"
coproc shlog record --shell zsh --session "$SHLOG_SESSION" >/dev/null 2>&1
exec {_shlog_fd}>&p

_shlog_cmd=""
_shlog_start=""

_shlog_preexec() {
  _shlog_cmd="$1"
  _shlog_start=$EPOCHREALTIME
}

_shlog_precmd() {
  local rtn=$?
  [[ -n "$_shlog_cmd" ]] || return
  local inp="${_shlog_cmd//\\/\\\\}"
  inp="${inp//$'\n'/\\n}"
  inp="${inp//$'\t'/\\t}"
  print -r -- "${_shlog_start}"$'\t'"${EPOCHREALTIME}"$'\t'"${rtn}"$'\t'"${inp}" >&$_shlog_fd
  _shlog_cmd=""
}

_shlog_zshexit() {
  exec {_shlog_fd}>&-
}

autoload -Uz add-zsh-hook
add-zsh-hook preexec _shlog_preexec
add-zsh-hook precmd _shlog_precmd
add-zsh-hook zshexit _shlog_zshexit
`
