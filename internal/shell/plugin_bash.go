package shell

// BashPlugin is the bash plugin source. A DEBUG trap notes when a command
// line starts; PROMPT_COMMAND sends the finished line to a `shlog record`
// coprocess. Requires bash 5 for EPOCHREALTIME.
const BashPlugin = `# shlog shell plugin, auto-generated, do not edit manually
# Source this file from your ~/.bashrc:
#   source ~/.config/shlog/shlog.plugin.bash

command -v shlog >/dev/null 2>&1 || return

export SHLOG_SESSION="$(shlog id --new)"
coproc _SHLOG_REC { exec shlog record --shell bash --session "$SHLOG_SESSION" >/dev/null 2>&1; }

_shlog_start=""
_shlog_armed=1

_shlog_preexec() {
  [[ -n "$COMP_LINE" ]] && return
  if [[ "$BASH_COMMAND" == _shlog_* ]]; then
    _shlog_armed=""
    return
  fi
  [[ -n "$_shlog_armed" ]] || return
  _shlog_armed=""
  _shlog_start=$EPOCHREALTIME
}

_shlog_precmd() {
  local rtn=$_shlog_rtn
  if [[ -n "$_shlog_start" ]]; then
    local inp
    inp="$(HISTTIMEFORMAT= builtin history 1)"
    inp="${inp#*[0-9]  }"
    inp="${inp//\\/\\\\}"
    inp="${inp//$'\n'/\\n}"
    inp="${inp//$'\t'/\\t}"
    printf '%s\t%s\t%s\t%s\n' "$_shlog_start" "$EPOCHREALTIME" "$rtn" "$inp" >&"${_SHLOG_REC[1]}"
  fi
  _shlog_start=""
  _shlog_armed=1
}

trap '_shlog_preexec' DEBUG
PROMPT_COMMAND="_shlog_rtn=\$?;${PROMPT_COMMAND:+$PROMPT_COMMAND;}_shlog_precmd"
`
